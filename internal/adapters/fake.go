package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// FakeTrader is an in-memory TraderProvider. It backs tests and provider-less
// local runs. Set FailWith to inject a provider failure on every call.
type FakeTrader struct {
	mu       sync.Mutex
	seq      int
	FailWith error

	// Backtests run by report ID, so tests can mutate provider-side state.
	Backtests map[string]BacktestReport
}

// NewFakeTrader creates an empty FakeTrader.
func NewFakeTrader() *FakeTrader {
	return &FakeTrader{Backtests: make(map[string]BacktestReport)}
}

// CreateStrategy allocates a provider strategy reference.
func (f *FakeTrader) CreateStrategy(_ context.Context, name, _ string) (ProviderStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return ProviderStrategy{}, f.FailWith
	}
	f.seq++
	return ProviderStrategy{RefID: fmt.Sprintf("trader-strategy-%d-%s", f.seq, name)}, nil
}

// CreateBacktest starts a fake backtest that completes immediately.
func (f *FakeTrader) CreateBacktest(_ context.Context, spec BacktestSpec) (BacktestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return BacktestReport{}, f.FailWith
	}
	f.seq++
	report := BacktestReport{
		ReportID: fmt.Sprintf("trader-report-%d", f.seq),
		Status:   "completed",
		Metrics: map[string]float64{
			"total_return_pct": 12.5,
			"sharpe_ratio":     1.4,
			"max_drawdown_pct": 6.2,
			"initial_cash":     spec.InitialCash,
		},
	}
	f.Backtests[report.ReportID] = report
	return report, nil
}

// GetBacktest returns the stored report.
func (f *FakeTrader) GetBacktest(_ context.Context, reportID string) (BacktestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return BacktestReport{}, f.FailWith
	}
	report, ok := f.Backtests[reportID]
	if !ok {
		return BacktestReport{}, NewAdapterError(model.ErrCodeTraderUnavailable, 502,
			fmt.Sprintf("unknown report %q", reportID))
	}
	return report, nil
}

// ResearchCostUSD returns the per-call charge.
func (f *FakeTrader) ResearchCostUSD() float64 { return traderResearchCostUSD }

// SetBacktest overrides provider-side report state.
func (f *FakeTrader) SetBacktest(report BacktestReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Backtests[report.ReportID] = report
}

// FakeLiveEngine is an in-memory LiveEngine with controllable provider state.
type FakeLiveEngine struct {
	mu       sync.Mutex
	seq      int
	FailWith error

	Deployments map[string]DeploymentState
	Orders      map[string]ProviderOrder
	Portfolios  map[model.DeploymentMode]PortfolioSnapshot

	// Counters let tests assert how often the engine was called.
	StopCalls   int
	CancelCalls int
}

// NewFakeLiveEngine creates an empty FakeLiveEngine.
func NewFakeLiveEngine() *FakeLiveEngine {
	return &FakeLiveEngine{
		Deployments: make(map[string]DeploymentState),
		Orders:      make(map[string]ProviderOrder),
		Portfolios:  make(map[model.DeploymentMode]PortfolioSnapshot),
	}
}

// CreateDeployment starts a fake deployment in the "active" provider state.
func (f *FakeLiveEngine) CreateDeployment(_ context.Context, _ DeploymentSpec) (ProviderDeployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return ProviderDeployment{}, f.FailWith
	}
	f.seq++
	refID := fmt.Sprintf("engine-deployment-%d", f.seq)
	f.Deployments[refID] = DeploymentState{Status: "active"}
	return ProviderDeployment{RefID: refID, Status: "active"}, nil
}

// StopDeployment moves a fake deployment to "terminated".
func (f *FakeLiveEngine) StopDeployment(_ context.Context, refID string) (ProviderDeployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	if f.FailWith != nil {
		return ProviderDeployment{}, f.FailWith
	}
	state, ok := f.Deployments[refID]
	if !ok {
		return ProviderDeployment{}, NewAdapterError(model.ErrCodeLiveEngineUnavailable, 502,
			fmt.Sprintf("unknown deployment %q", refID))
	}
	state.Status = "terminated"
	f.Deployments[refID] = state
	return ProviderDeployment{RefID: refID, Status: state.Status}, nil
}

// GetDeployment returns the fake provider state.
func (f *FakeLiveEngine) GetDeployment(_ context.Context, refID string) (DeploymentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return DeploymentState{}, f.FailWith
	}
	state, ok := f.Deployments[refID]
	if !ok {
		return DeploymentState{}, NewAdapterError(model.ErrCodeLiveEngineUnavailable, 502,
			fmt.Sprintf("unknown deployment %q", refID))
	}
	return state, nil
}

// PlaceOrder accepts a fake order in the "open" provider state.
func (f *FakeLiveEngine) PlaceOrder(_ context.Context, _ OrderSpec) (ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return ProviderOrder{}, f.FailWith
	}
	f.seq++
	order := ProviderOrder{OrderID: fmt.Sprintf("engine-order-%d", f.seq), Status: "open"}
	f.Orders[order.OrderID] = order
	return order, nil
}

// CancelOrder moves a fake order to "cancelled".
func (f *FakeLiveEngine) CancelOrder(_ context.Context, providerOrderID string) (ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelCalls++
	if f.FailWith != nil {
		return ProviderOrder{}, f.FailWith
	}
	order, ok := f.Orders[providerOrderID]
	if !ok {
		return ProviderOrder{}, NewAdapterError(model.ErrCodeLiveEngineUnavailable, 502,
			fmt.Sprintf("unknown order %q", providerOrderID))
	}
	order.Status = "cancelled"
	f.Orders[providerOrderID] = order
	return order, nil
}

// GetOrder returns the fake provider state of an order.
func (f *FakeLiveEngine) GetOrder(_ context.Context, providerOrderID string) (ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return ProviderOrder{}, f.FailWith
	}
	order, ok := f.Orders[providerOrderID]
	if !ok {
		return ProviderOrder{}, NewAdapterError(model.ErrCodeLiveEngineUnavailable, 502,
			fmt.Sprintf("unknown order %q", providerOrderID))
	}
	return order, nil
}

// GetPortfolio returns the configured snapshot, or an empty account.
func (f *FakeLiveEngine) GetPortfolio(_ context.Context, mode model.DeploymentMode) (PortfolioSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return PortfolioSnapshot{}, f.FailWith
	}
	if snap, ok := f.Portfolios[mode]; ok {
		return snap, nil
	}
	return PortfolioSnapshot{Cash: 100000, TotalValue: 100000}, nil
}

// SetDeployment overrides provider-side deployment state.
func (f *FakeLiveEngine) SetDeployment(refID string, state DeploymentState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deployments[refID] = state
}

// SetOrder overrides provider-side order state.
func (f *FakeLiveEngine) SetOrder(order ProviderOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Orders[order.OrderID] = order
}

// FakeDataBridge is an in-memory DataBridge.
type FakeDataBridge struct {
	mu          sync.Mutex
	PublishFail error
	Published   map[string]string

	Prices map[string]float64
}

// NewFakeDataBridge creates an empty FakeDataBridge.
func NewFakeDataBridge() *FakeDataBridge {
	return &FakeDataBridge{
		Published: make(map[string]string),
		Prices:    map[string]float64{"BTCUSDT": 64000, "ETHUSDT": 3200},
	}
}

// PublishDataset records the publish, or fails when PublishFail is set.
func (f *FakeDataBridge) PublishDataset(_ context.Context, providerDataID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishFail != nil {
		return f.PublishFail
	}
	f.Published[providerDataID] = filename
	return nil
}

// MarketContext returns the configured price for a symbol.
func (f *FakeDataBridge) MarketContext(_ context.Context, symbol string) (model.MarketContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.Prices[symbol]
	if !ok {
		price = 100
	}
	return model.MarketContext{Symbol: symbol, LastPrice: price, AsOf: time.Now().UTC()}, nil
}
