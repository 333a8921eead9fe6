package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// Per-call research charge for the hosted trader provider, in USD.
const traderResearchCostUSD = 0.25

// HTTPTrader talks to the strategy/backtest provider over HTTP.
type HTTPTrader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTrader creates a trader client with the configured deadline.
func NewHTTPTrader(baseURL string, timeout time.Duration) *HTTPTrader {
	return &HTTPTrader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTrader) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("trader: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("trader: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return NewAdapterError(model.ErrCodeTraderUnavailable, http.StatusBadGateway,
			fmt.Sprintf("trader request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewAdapterError(model.ErrCodeTraderUnavailable, http.StatusBadGateway,
			fmt.Sprintf("trader returned status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewAdapterError(model.ErrCodeTraderBadResponse, http.StatusBadGateway,
			"trader returned malformed JSON")
	}
	return nil
}

// CreateStrategy registers a strategy with the provider.
func (t *HTTPTrader) CreateStrategy(ctx context.Context, name, description string) (ProviderStrategy, error) {
	var payload struct {
		ID string `json:"id"`
	}
	err := t.do(ctx, http.MethodPost, "/strategies", map[string]any{
		"name":        name,
		"description": description,
	}, &payload)
	if err != nil {
		return ProviderStrategy{}, err
	}
	return ProviderStrategy{RefID: payload.ID}, nil
}

type traderBacktestPayload struct {
	ID      string             `json:"id"`
	Status  string             `json:"status"`
	Metrics map[string]float64 `json:"metrics"`
	Error   string             `json:"error"`
}

// CreateBacktest starts a backtest on the provider.
func (t *HTTPTrader) CreateBacktest(ctx context.Context, spec BacktestSpec) (BacktestReport, error) {
	var payload traderBacktestPayload
	err := t.do(ctx, http.MethodPost, "/backtests", map[string]any{
		"strategy_ref": spec.StrategyRefID,
		"data_ids":     spec.ProviderDataIDs,
		"start_date":   spec.StartDate,
		"end_date":     spec.EndDate,
		"initial_cash": spec.InitialCash,
	}, &payload)
	if err != nil {
		return BacktestReport{}, err
	}
	return BacktestReport{ReportID: payload.ID, Status: payload.Status, Metrics: payload.Metrics, Error: payload.Error}, nil
}

// GetBacktest fetches the provider's view of a backtest report.
func (t *HTTPTrader) GetBacktest(ctx context.Context, reportID string) (BacktestReport, error) {
	var payload traderBacktestPayload
	if err := t.do(ctx, http.MethodGet, "/backtests/"+reportID, nil, &payload); err != nil {
		return BacktestReport{}, err
	}
	return BacktestReport{ReportID: payload.ID, Status: payload.Status, Metrics: payload.Metrics, Error: payload.Error}, nil
}

// ResearchCostUSD returns the per-call research budget charge.
func (t *HTTPTrader) ResearchCostUSD() float64 {
	return traderResearchCostUSD
}
