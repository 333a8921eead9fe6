package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// HTTPDataBridge talks to the dataset provider over HTTP.
type HTTPDataBridge struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDataBridge creates a data-bridge client with the configured deadline.
func NewHTTPDataBridge(baseURL string, timeout time.Duration) *HTTPDataBridge {
	return &HTTPDataBridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// PublishDataset registers a dataset file under the allocated provider ID.
func (b *HTTPDataBridge) PublishDataset(ctx context.Context, providerDataID, filename string) error {
	raw, err := json.Marshal(map[string]string{
		"data_id":  providerDataID,
		"filename": filename,
	})
	if err != nil {
		return fmt.Errorf("data bridge: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/datasets", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("data bridge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return NewAdapterError(model.ErrCodeDatasetPublishFailed, http.StatusBadGateway,
			fmt.Sprintf("dataset publish failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewAdapterError(model.ErrCodeDatasetPublishFailed, http.StatusBadGateway,
			fmt.Sprintf("dataset publish returned status %d", resp.StatusCode))
	}
	return nil
}

// MarketContext fetches a market snapshot for a symbol.
func (b *HTTPDataBridge) MarketContext(ctx context.Context, symbol string) (model.MarketContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.baseURL+"/market-context?symbol="+url.QueryEscape(symbol), nil)
	if err != nil {
		return model.MarketContext{}, fmt.Errorf("data bridge: build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return model.MarketContext{}, NewAdapterError(model.ErrCodeTraderUnavailable, http.StatusBadGateway,
			fmt.Sprintf("market context request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.MarketContext{}, NewAdapterError(model.ErrCodeTraderUnavailable, http.StatusBadGateway,
			fmt.Sprintf("market context returned status %d", resp.StatusCode))
	}

	var payload struct {
		Symbol    string    `json:"symbol"`
		LastPrice float64   `json:"last_price"`
		AsOf      time.Time `json:"as_of"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.MarketContext{}, NewAdapterError(model.ErrCodeTraderBadResponse, http.StatusBadGateway,
			"market context returned malformed JSON")
	}
	mc := model.MarketContext{Symbol: payload.Symbol, LastPrice: payload.LastPrice, AsOf: payload.AsOf}
	if mc.Symbol == "" {
		mc.Symbol = symbol
	}
	if mc.AsOf.IsZero() {
		mc.AsOf = time.Now().UTC()
	}
	return mc, nil
}
