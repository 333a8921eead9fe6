package store_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

var (
	tenantA = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}
	tenantB = model.RequestContext{TenantID: "tenant-002", UserID: "user-002", RequestID: "req-2"}
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(nil, 2*time.Minute)
}

func TestCreateStrategy_AssignsMonotonicIDs(t *testing.T) {
	s := newStore(t)

	first := s.CreateStrategy(tenantA, model.Strategy{Name: "momentum"})
	second := s.CreateStrategy(tenantA, model.Strategy{Name: "mean-reversion"})

	assert.Equal(t, "strategy-000001", first.ID)
	assert.Equal(t, "strategy-000002", second.ID)
	assert.Equal(t, "tenant-001", first.TenantID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestTenantIsolation(t *testing.T) {
	s := newStore(t)

	strat := s.CreateStrategy(tenantA, model.Strategy{Name: "momentum"})
	dep := s.CreateDeployment(tenantA, model.Deployment{StrategyID: strat.ID, Mode: model.ModePaper, Capital: 1000})

	// Reads by a different tenant behave as if the record did not exist.
	_, err := s.GetStrategy(tenantB, strat.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetDeployment(tenantB, dep.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, s.ListDeployments(tenantB))

	// Updates are rejected the same way.
	_, err = s.UpdateDeployment(tenantB, dep.ID, func(d *model.Deployment) { d.Capital = 0 })
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The owner still sees everything.
	got, err := s.GetDeployment(tenantA, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1000), got.Capital)
}

func TestActiveCapital_CountsOnlyActiveStates(t *testing.T) {
	s := newStore(t)

	s.CreateDeployment(tenantA, model.Deployment{Mode: model.ModePaper, Capital: 100, Status: model.DeploymentQueued})
	s.CreateDeployment(tenantA, model.Deployment{Mode: model.ModePaper, Capital: 200, Status: model.DeploymentRunning})
	s.CreateDeployment(tenantA, model.Deployment{Mode: model.ModePaper, Capital: 400, Status: model.DeploymentPaused})
	s.CreateDeployment(tenantA, model.Deployment{Mode: model.ModePaper, Capital: 800, Status: model.DeploymentStopped})
	s.CreateDeployment(tenantB, model.Deployment{Mode: model.ModePaper, Capital: 1600, Status: model.DeploymentRunning})

	assert.Equal(t, float64(700), s.ActiveCapital(tenantA))
}

func TestConcurrentCreates_NoDuplicateIDs(t *testing.T) {
	s := newStore(t)

	const n = 200
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.CreateOrder(tenantA, model.Order{Symbol: "BTCUSDT", Side: model.SideBuy, Quantity: 1}).ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestRiskAudit_AppendAndScope(t *testing.T) {
	s := newStore(t)

	s.AppendRiskAudit(model.RiskAuditRecord{
		Decision: model.RiskAllow, CheckType: "pre_trade_order",
		TenantID: tenantA.TenantID, UserID: tenantA.UserID,
	})
	s.AppendRiskAudit(model.RiskAuditRecord{
		Decision: model.RiskBlock, CheckType: "pre_trade_order",
		TenantID: tenantB.TenantID, UserID: tenantB.UserID,
	})

	assert.Len(t, s.ListRiskAudit(tenantA), 1)
	assert.Len(t, s.ListRiskAudit(tenantB), 1)
}

func TestMarketContextCache_TTL(t *testing.T) {
	s := store.New(nil, 50*time.Millisecond)

	s.PutMarketContext(model.MarketContext{Symbol: "BTCUSDT", LastPrice: 64000})
	mc, ok := s.GetMarketContext("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, float64(64000), mc.LastPrice)

	time.Sleep(60 * time.Millisecond)
	_, ok = s.GetMarketContext("BTCUSDT")
	assert.False(t, ok, "entry expires after TTL")

	// TTL zero disables caching entirely.
	disabled := store.New(nil, 0)
	disabled.PutMarketContext(model.MarketContext{Symbol: "ETHUSDT", LastPrice: 3000})
	_, ok = disabled.GetMarketContext("ETHUSDT")
	assert.False(t, ok)
}

func TestResearchSpend_AccumulatesPerTenant(t *testing.T) {
	s := newStore(t)

	assert.Equal(t, float64(0), s.ResearchSpend("tenant-001"))
	assert.Equal(t, float64(3), s.AddResearchSpend("tenant-001", 3))
	assert.Equal(t, float64(5), s.AddResearchSpend("tenant-001", 2))
	assert.Equal(t, float64(0), s.ResearchSpend("tenant-002"))
}

func TestPortfolio_TenantWide(t *testing.T) {
	s := newStore(t)

	s.UpsertPortfolio(tenantA, model.Portfolio{Mode: model.ModePaper, Cash: 5000, TotalValue: 6000})

	sameTenantOtherUser := model.RequestContext{TenantID: tenantA.TenantID, UserID: "user-099"}
	pf, err := s.GetPortfolio(sameTenantOtherUser, model.ModePaper)
	require.NoError(t, err)
	assert.Equal(t, float64(6000), pf.TotalValue)

	_, err = s.GetPortfolio(tenantB, model.ModePaper)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSnapshotActiveDeployments_CrossesTenants(t *testing.T) {
	s := newStore(t)

	s.CreateDeployment(tenantA, model.Deployment{Mode: model.ModePaper, Capital: 1, Status: model.DeploymentRunning})
	s.CreateDeployment(tenantB, model.Deployment{Mode: model.ModeLive, Capital: 1, Status: model.DeploymentStopping})
	s.CreateDeployment(tenantB, model.Deployment{Mode: model.ModeLive, Capital: 1, Status: model.DeploymentStopped})

	snap := s.SnapshotActiveDeployments()
	require.Len(t, snap, 2)
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i-1].ID < snap[i].ID || snap[i-1].CreatedAt.Before(snap[i].CreatedAt))
	}
}

func TestListStrategies_Deterministic(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 5; i++ {
		s.CreateStrategy(tenantA, model.Strategy{Name: fmt.Sprintf("s%d", i)})
	}
	list := s.ListStrategies(tenantA)
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
}
