// Package adapters is the only code path allowed to talk to external
// providers: the strategy/backtest provider ("trader"), the live-execution
// engine, and the dataset bridge.
//
// Every adapter returns domain-shaped data, never raw provider payloads, and
// every failure is an AdapterError with a stable code. Domain services
// translate AdapterError into PlatformError; nothing above this package sees
// provider transport details.
package adapters

import (
	"context"
	"fmt"

	"github.com/lonalabs/lona/internal/model"
)

// AdapterError is the typed error envelope for all provider failures.
type AdapterError struct {
	Code    string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// NewAdapterError creates an AdapterError.
func NewAdapterError(code string, status int, message string) *AdapterError {
	return &AdapterError{Code: code, Status: status, Message: message}
}

// ProviderStrategy is the provider's view of a registered strategy.
type ProviderStrategy struct {
	RefID string
}

// BacktestSpec is the request shape for starting a provider backtest.
type BacktestSpec struct {
	StrategyRefID   string
	ProviderDataIDs []string
	StartDate       string
	EndDate         string
	InitialCash     float64
}

// BacktestReport is the provider's view of a backtest.
type BacktestReport struct {
	ReportID string
	Status   string
	Metrics  map[string]float64
	Error    string
}

// TraderProvider is the boundary to the strategy/backtest provider.
type TraderProvider interface {
	CreateStrategy(ctx context.Context, name, description string) (ProviderStrategy, error)
	CreateBacktest(ctx context.Context, spec BacktestSpec) (BacktestReport, error)
	GetBacktest(ctx context.Context, reportID string) (BacktestReport, error)
	// ResearchCostUSD is the per-call research budget charge for this provider.
	ResearchCostUSD() float64
}

// DeploymentSpec is the request shape for starting a provider deployment.
type DeploymentSpec struct {
	StrategyRefID string
	Mode          model.DeploymentMode
	Capital       float64
}

// ProviderDeployment is the provider's view of a deployment.
type ProviderDeployment struct {
	RefID  string
	Status string
}

// DeploymentState is a reconciliation snapshot of a provider deployment.
type DeploymentState struct {
	Status    string
	LatestPnl *float64
}

// OrderSpec is the request shape for placing a provider order.
type OrderSpec struct {
	Symbol    string
	Side      model.OrderSide
	OrderType string
	Quantity  float64
	Price     *float64
}

// ProviderOrder is the provider's view of an order.
type ProviderOrder struct {
	OrderID string
	Status  string
}

// PortfolioSnapshot is the provider's view of the account for one mode.
type PortfolioSnapshot struct {
	Cash       float64
	TotalValue float64
	PnlTotal   float64
	Positions  []model.Position
}

// LiveEngine is the boundary to the live-execution engine.
type LiveEngine interface {
	CreateDeployment(ctx context.Context, spec DeploymentSpec) (ProviderDeployment, error)
	StopDeployment(ctx context.Context, refID string) (ProviderDeployment, error)
	GetDeployment(ctx context.Context, refID string) (DeploymentState, error)
	PlaceOrder(ctx context.Context, spec OrderSpec) (ProviderOrder, error)
	CancelOrder(ctx context.Context, providerOrderID string) (ProviderOrder, error)
	GetOrder(ctx context.Context, providerOrderID string) (ProviderOrder, error)
	GetPortfolio(ctx context.Context, mode model.DeploymentMode) (PortfolioSnapshot, error)
}

// DataBridge is the boundary to the dataset provider.
type DataBridge interface {
	PublishDataset(ctx context.Context, providerDataID, filename string) error
	MarketContext(ctx context.Context, symbol string) (model.MarketContext, error)
}
