package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/knowledge"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

var rctx = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}

func newReconciler(t *testing.T, minInterval time.Duration) (*Reconciler, *store.Store, *adapters.FakeLiveEngine) {
	t.Helper()
	st := store.New(nil, time.Minute)
	engine := adapters.NewFakeLiveEngine()
	return New(st, engine, knowledge.NewService(st, nil), minInterval, nil), st, engine
}

func TestReconcileDeployments_ConvergesToProviderState(t *testing.T) {
	r, st, engine := newReconciler(t, 0)

	dep := st.CreateDeployment(rctx, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1000,
		Mode: model.ModePaper, ProviderRefID: "engine-deployment-1",
	})
	engine.SetDeployment("engine-deployment-1", adapters.DeploymentState{Status: "stopped"})

	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))

	updated, err := st.GetDeployment(rctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStopped, updated.Status)
	require.NotNil(t, updated.LastReconciledAt)

	events := st.ListDriftEvents(rctx)
	require.Len(t, events, 1, "exactly one drift event per convergence")
	assert.Equal(t, ResourceDeployment, events[0].ResourceType)
	assert.Equal(t, string(model.DeploymentRunning), events[0].PreviousState)
	assert.Equal(t, "stopped", events[0].ProviderState)
	assert.Equal(t, string(model.DeploymentStopped), events[0].Resolution)
	assert.Equal(t, "tenant-001", events[0].Metadata["tenantId"])

	// A second pass with no further change appends nothing.
	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))
	assert.Len(t, st.ListDriftEvents(rctx), 1)
}

func TestReconcileDeployments_PnlChangeEmitsDriftAndLesson(t *testing.T) {
	r, st, engine := newReconciler(t, 0)

	dep := st.CreateDeployment(rctx, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1000,
		Mode: model.ModePaper, ProviderRefID: "engine-deployment-1",
	})
	pnl := -25.0
	engine.SetDeployment("engine-deployment-1", adapters.DeploymentState{Status: "running", LatestPnl: &pnl})

	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))

	updated, err := st.GetDeployment(rctx, dep.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LatestPnl)
	assert.Equal(t, -25.0, *updated.LatestPnl)

	events := st.ListDriftEvents(rctx)
	require.Len(t, events, 1)
	assert.Equal(t, "-25.00", events[0].Metadata["latestPnl"])
	assert.Len(t, st.ListLessons(rctx), 1, "state change feeds the knowledge base")
}

func TestReconcileDeployments_UnknownProviderStatePreservedUnlessFailed(t *testing.T) {
	r, st, engine := newReconciler(t, 0)

	dep := st.CreateDeployment(rctx, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1000,
		Mode: model.ModePaper, ProviderRefID: "engine-deployment-1",
	})
	engine.SetDeployment("engine-deployment-1", adapters.DeploymentState{Status: "weird-status"})

	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))
	updated, err := st.GetDeployment(rctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentFailed, updated.Status, "unknown maps to failed, which always wins")
}

func TestReconcileOrders(t *testing.T) {
	r, st, engine := newReconciler(t, 0)

	ord := st.CreateOrder(rctx, model.Order{
		Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1,
		Status: model.OrderPending, ProviderOrderID: "engine-order-1",
	})
	engine.SetOrder(adapters.ProviderOrder{OrderID: "engine-order-1", Status: "filled"})

	require.NoError(t, r.ReconcileOrders(context.Background(), rctx))

	updated, err := st.GetOrder(rctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFilled, updated.Status)

	events := st.ListDriftEvents(rctx)
	require.Len(t, events, 1)
	assert.Equal(t, ResourceOrder, events[0].ResourceType)
	assert.Equal(t, "BTCUSDT", events[0].Metadata["symbol"])
}

func TestThrottle_SecondPassWithinIntervalSkipped(t *testing.T) {
	r, st, engine := newReconciler(t, time.Hour)

	dep := st.CreateDeployment(rctx, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1000,
		Mode: model.ModePaper, ProviderRefID: "engine-deployment-1",
	})
	engine.SetDeployment("engine-deployment-1", adapters.DeploymentState{Status: "stopped"})

	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))
	first, err := st.GetDeployment(rctx, dep.ID)
	require.NoError(t, err)
	firstAt := first.LastReconciledAt
	require.NotNil(t, firstAt)

	// Within the interval the pass is a no-op.
	engine.SetDeployment("engine-deployment-1", adapters.DeploymentState{Status: "running"})
	require.NoError(t, r.ReconcileDeployments(context.Background(), rctx))
	second, err := st.GetDeployment(rctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, firstAt, second.LastReconciledAt)

	// Other tenants and resource types are throttled independently.
	other := model.RequestContext{TenantID: "tenant-002", UserID: "user-002"}
	assert.NoError(t, r.ReconcileDeployments(context.Background(), other))
	assert.NoError(t, r.ReconcileOrders(context.Background(), rctx))
}

func TestRunOnce_SweepsAllTenants(t *testing.T) {
	r, st, engine := newReconciler(t, 0)
	other := model.RequestContext{TenantID: "tenant-002", UserID: "user-002"}

	a := st.CreateDeployment(rctx, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1, Mode: model.ModePaper, ProviderRefID: "d1",
	})
	b := st.CreateDeployment(other, model.Deployment{
		Status: model.DeploymentRunning, Capital: 1, Mode: model.ModePaper, ProviderRefID: "d2",
	})
	engine.SetDeployment("d1", adapters.DeploymentState{Status: "stopped"})
	engine.SetDeployment("d2", adapters.DeploymentState{Status: "stopped"})

	r.runOnce(context.Background())

	first, err := st.GetDeployment(rctx, a.ID)
	require.NoError(t, err)
	second, err := st.GetDeployment(other, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentStopped, first.Status)
	assert.Equal(t, model.DeploymentStopped, second.Status)
}
