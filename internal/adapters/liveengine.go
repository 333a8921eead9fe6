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

// HTTPLiveEngine talks to the live-execution engine over HTTP.
type HTTPLiveEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLiveEngine creates a live-engine client with the configured deadline.
func NewHTTPLiveEngine(baseURL string, timeout time.Duration) *HTTPLiveEngine {
	return &HTTPLiveEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPLiveEngine) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("live engine: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("live engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return NewAdapterError(model.ErrCodeLiveEngineUnavailable, http.StatusBadGateway,
			fmt.Sprintf("live engine request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewAdapterError(model.ErrCodeLiveEngineUnavailable, http.StatusBadGateway,
			fmt.Sprintf("live engine returned status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewAdapterError(model.ErrCodeLiveEngineBadResponse, http.StatusBadGateway,
			"live engine returned malformed JSON")
	}
	return nil
}

type engineDeploymentPayload struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	LatestPnl *float64 `json:"latest_pnl,omitempty"`
}

// CreateDeployment starts a deployment on the engine.
func (e *HTTPLiveEngine) CreateDeployment(ctx context.Context, spec DeploymentSpec) (ProviderDeployment, error) {
	var payload engineDeploymentPayload
	err := e.do(ctx, http.MethodPost, "/deployments", map[string]any{
		"strategy_ref": spec.StrategyRefID,
		"mode":         spec.Mode,
		"capital":      spec.Capital,
	}, &payload)
	if err != nil {
		return ProviderDeployment{}, err
	}
	return ProviderDeployment{RefID: payload.ID, Status: payload.Status}, nil
}

// StopDeployment requests a stop for a deployment on the engine.
func (e *HTTPLiveEngine) StopDeployment(ctx context.Context, refID string) (ProviderDeployment, error) {
	var payload engineDeploymentPayload
	if err := e.do(ctx, http.MethodPost, "/deployments/"+refID+"/stop", nil, &payload); err != nil {
		return ProviderDeployment{}, err
	}
	return ProviderDeployment{RefID: payload.ID, Status: payload.Status}, nil
}

// GetDeployment fetches a reconciliation snapshot of a deployment.
func (e *HTTPLiveEngine) GetDeployment(ctx context.Context, refID string) (DeploymentState, error) {
	var payload engineDeploymentPayload
	if err := e.do(ctx, http.MethodGet, "/deployments/"+refID, nil, &payload); err != nil {
		return DeploymentState{}, err
	}
	return DeploymentState{Status: payload.Status, LatestPnl: payload.LatestPnl}, nil
}

type engineOrderPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PlaceOrder submits an order to the engine.
func (e *HTTPLiveEngine) PlaceOrder(ctx context.Context, spec OrderSpec) (ProviderOrder, error) {
	body := map[string]any{
		"symbol":     spec.Symbol,
		"side":       spec.Side,
		"order_type": spec.OrderType,
		"quantity":   spec.Quantity,
	}
	if spec.Price != nil {
		body["price"] = *spec.Price
	}
	var payload engineOrderPayload
	if err := e.do(ctx, http.MethodPost, "/orders", body, &payload); err != nil {
		return ProviderOrder{}, err
	}
	return ProviderOrder{OrderID: payload.ID, Status: payload.Status}, nil
}

// CancelOrder requests cancellation of an order on the engine.
func (e *HTTPLiveEngine) CancelOrder(ctx context.Context, providerOrderID string) (ProviderOrder, error) {
	var payload engineOrderPayload
	if err := e.do(ctx, http.MethodPost, "/orders/"+providerOrderID+"/cancel", nil, &payload); err != nil {
		return ProviderOrder{}, err
	}
	return ProviderOrder{OrderID: payload.ID, Status: payload.Status}, nil
}

// GetOrder fetches the engine's view of an order.
func (e *HTTPLiveEngine) GetOrder(ctx context.Context, providerOrderID string) (ProviderOrder, error) {
	var payload engineOrderPayload
	if err := e.do(ctx, http.MethodGet, "/orders/"+providerOrderID, nil, &payload); err != nil {
		return ProviderOrder{}, err
	}
	return ProviderOrder{OrderID: payload.ID, Status: payload.Status}, nil
}

type enginePortfolioPayload struct {
	Cash       float64          `json:"cash"`
	TotalValue float64          `json:"total_value"`
	PnlTotal   float64          `json:"pnl_total"`
	Positions  []model.Position `json:"positions"`
}

// GetPortfolio fetches the account snapshot for one mode.
func (e *HTTPLiveEngine) GetPortfolio(ctx context.Context, mode model.DeploymentMode) (PortfolioSnapshot, error) {
	var payload enginePortfolioPayload
	if err := e.do(ctx, http.MethodGet, "/portfolio?mode="+string(mode), nil, &payload); err != nil {
		return PortfolioSnapshot{}, err
	}
	return PortfolioSnapshot{
		Cash:       payload.Cash,
		TotalValue: payload.TotalValue,
		PnlTotal:   payload.PnlTotal,
		Positions:  payload.Positions,
	}, nil
}
