package execution

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/risk"
	"github.com/lonalabs/lona/internal/store"
)

var rctx = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}

func newService(t *testing.T) (*Service, *store.Store, *adapters.FakeLiveEngine) {
	t.Helper()
	st := store.New(nil, time.Minute)
	engine := adapters.NewFakeLiveEngine()
	policy := risk.DefaultPolicy()
	policy.Limits.MaxNotionalUsd = 100000
	policy.Limits.MaxPositionNotionalUsd = 100000
	svc := NewService(st, engine, risk.NewEngine(policy, st, nil), nil)
	return svc, st, engine
}

func platformErr(t *testing.T, err error) *model.PlatformError {
	t.Helper()
	var pe *model.PlatformError
	require.ErrorAs(t, err, &pe)
	return pe
}

func TestCreateDeployment_IdempotentReplay(t *testing.T) {
	svc, _, engine := newService(t)
	strategy := model.Strategy{ID: "strategy-000001", ProviderRefID: "trader-strategy-1"}
	req := model.CreateDeploymentRequest{StrategyID: strategy.ID, Mode: model.ModePaper, Capital: 12000}

	first, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, model.DeploymentRunning, first.Status, "engine reports active")

	second, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, engine.Deployments, 1, "replay performs no provider call")

	// Same key, different payload.
	req.Capital = 13000
	_, _, err = svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	pe := platformErr(t, err)
	assert.Equal(t, model.ErrCodeIdempotencyConflict, pe.Code)
	assert.Equal(t, http.StatusConflict, pe.Status)
}

func TestCreateDeployment_AdapterFailureClearsKey(t *testing.T) {
	svc, _, engine := newService(t)
	strategy := model.Strategy{ID: "strategy-000001"}
	req := model.CreateDeploymentRequest{StrategyID: strategy.ID, Mode: model.ModePaper, Capital: 100}

	engine.FailWith = adapters.NewAdapterError(model.ErrCodeLiveEngineUnavailable, 502, "down")
	_, _, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	pe := platformErr(t, err)
	assert.Equal(t, model.ErrCodeLiveEngineUnavailable, pe.Code)

	// The key was released; a retry with the same key succeeds.
	engine.FailWith = nil
	dep, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEmpty(t, dep.ID)
}

func TestCreateDeployment_ReplayAfterKillSwitchTrips(t *testing.T) {
	st := store.New(nil, time.Minute)
	engine := adapters.NewFakeLiveEngine()
	policy := risk.DefaultPolicy()
	policy.Limits.MaxDrawdownPct = 5
	riskEngine := risk.NewEngine(policy, st, nil)
	svc := NewService(st, engine, riskEngine, nil)
	riskEngine.SetStopper(svc)

	strategy := model.Strategy{ID: "strategy-000001", ProviderRefID: "trader-strategy-1"}
	req := model.CreateDeploymentRequest{StrategyID: strategy.ID, Mode: model.ModePaper, Capital: 20000}

	first, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	require.NoError(t, err)
	require.False(t, replayed)

	// 1000/20000 = 5% meets the 5% limit; the switch trips.
	pnl := -1000.0
	tripped := first
	tripped.LatestPnl = &pnl
	riskEngine.EvaluateDeploymentDrawdown(context.Background(), rctx, tripped)
	require.True(t, riskEngine.KillSwitchActive())

	// The accepted command replays from the cache: original entity, no
	// re-gating, no new audit record.
	auditBefore := len(st.ListRiskAudit(rctx))
	second, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k1", req, strategy)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, st.ListRiskAudit(rctx), auditBefore)

	// A fresh key is still gated, and the rejection releases its reservation.
	_, _, err = svc.CreateDeployment(context.Background(), rctx, "k2", req, strategy)
	pe := platformErr(t, err)
	assert.Equal(t, model.ErrCodeRiskKillSwitch, pe.Code)

	riskEngine.ResetKillSwitch(rctx)
	third, replayed, err := svc.CreateDeployment(context.Background(), rctx, "k2", req, strategy)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestStopDeployment_ConvergesToStopped(t *testing.T) {
	svc, _, _ := newService(t)
	strategy := model.Strategy{ID: "strategy-000001"}
	dep, _, err := svc.CreateDeployment(context.Background(), rctx, "",
		model.CreateDeploymentRequest{StrategyID: strategy.ID, Mode: model.ModePaper, Capital: 100}, strategy)
	require.NoError(t, err)

	stopped, err := svc.StopDeployment(context.Background(), rctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStopped, stopped.Status, "engine reports terminated")

	// Stopping a terminal deployment is a no-op, not an error.
	again, err := svc.StopDeployment(context.Background(), rctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStopped, again.Status)
}

func TestStopDeployment_UnknownID(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.StopDeployment(context.Background(), rctx, "deployment-999999")
	pe := platformErr(t, err)
	assert.Equal(t, model.ErrCodeDeploymentNotFound, pe.Code)
	assert.Equal(t, http.StatusNotFound, pe.Status)
}

func TestPlaceOrder_KillSwitchBlocks(t *testing.T) {
	st := store.New(nil, time.Minute)
	policy := risk.DefaultPolicy()
	policy.KillSwitch.Triggered = true
	svc := NewService(st, adapters.NewFakeLiveEngine(), risk.NewEngine(policy, st, nil), nil)

	_, _, err := svc.PlaceOrder(context.Background(), rctx, "",
		model.PlaceOrderRequest{Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1})
	pe := platformErr(t, err)
	assert.Equal(t, model.ErrCodeRiskKillSwitch, pe.Code)
	assert.Equal(t, http.StatusLocked, pe.Status)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	svc, _, engine := newService(t)
	req := model.PlaceOrderRequest{Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 0.01}

	first, replayed, err := svc.PlaceOrder(context.Background(), rctx, "ord-k1", req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, model.OrderPending, first.Status, "engine reports open")

	second, replayed, err := svc.PlaceOrder(context.Background(), rctx, "ord-k1", req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, engine.Orders, 1)
}

func TestCancelOrder(t *testing.T) {
	svc, _, engine := newService(t)
	ord, _, err := svc.PlaceOrder(context.Background(), rctx, "",
		model.PlaceOrderRequest{Symbol: "BTCUSDT", Side: model.SideSell, Quantity: 0.5})
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(context.Background(), rctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.Equal(t, 1, engine.CancelCalls)

	// Terminal orders are returned as-is without another provider call.
	again, err := svc.CancelOrder(context.Background(), rctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, again.Status)
	assert.Equal(t, 1, engine.CancelCalls)
}

func TestTranslateAdapterError(t *testing.T) {
	pe := TranslateAdapterError(adapters.NewAdapterError(model.ErrCodeLiveEngineBadResponse, 502, "garbled"))
	assert.Equal(t, model.ErrCodeLiveEngineBadResponse, pe.Code)
	assert.Equal(t, 502, pe.Status)

	pe = TranslateAdapterError(errors.New("boom"))
	assert.Equal(t, model.ErrCodeInternal, pe.Code)
}

func TestRefreshPortfolio(t *testing.T) {
	svc, st, engine := newService(t)
	engine.Portfolios[model.ModePaper] = adapters.PortfolioSnapshot{Cash: 5000, TotalValue: 7000, PnlTotal: 2000}

	pf, err := svc.RefreshPortfolio(context.Background(), rctx, model.ModePaper)
	require.NoError(t, err)
	assert.Equal(t, float64(7000), pf.TotalValue)

	stored, err := st.GetPortfolio(rctx, model.ModePaper)
	require.NoError(t, err)
	assert.Equal(t, float64(2000), stored.PnlTotal)
}
