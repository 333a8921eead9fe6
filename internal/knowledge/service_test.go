package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

var rctx = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(nil, time.Minute)
	return NewService(st, nil), st
}

func TestIngestBacktestOutcome_Idempotent(t *testing.T) {
	svc, st := newService(t)
	bt := model.Backtest{
		ID: "backtest-000001", StrategyID: "strategy-000001",
		Status: model.BacktestCompleted, Metrics: map[string]float64{"total_return_pct": 12.5},
	}

	lesson, written := svc.IngestBacktestOutcome(rctx, bt)
	assert.True(t, written)
	assert.Equal(t, CategoryBacktestCompleted, lesson.Category)
	assert.Contains(t, lesson.Summary, "12.50% return")

	// Repeat ingestion of the same outcome is suppressed.
	_, written = svc.IngestBacktestOutcome(rctx, bt)
	assert.False(t, written)
	assert.Len(t, st.ListLessons(rctx), 1)

	// A changed outcome is a new event.
	bt.Status = model.BacktestFailed
	bt.Error = "data gap"
	lesson, written = svc.IngestBacktestOutcome(rctx, bt)
	assert.True(t, written)
	assert.Equal(t, CategoryBacktestFailure, lesson.Category)
	assert.Contains(t, lesson.Summary, "data gap")
}

func TestIngestBacktestOutcome_StatusCategory(t *testing.T) {
	svc, _ := newService(t)
	lesson, written := svc.IngestBacktestOutcome(rctx, model.Backtest{
		ID: "backtest-000002", StrategyID: "strategy-000001", Status: model.BacktestRunning,
	})
	assert.True(t, written)
	assert.Equal(t, CategoryBacktestStatus, lesson.Category)
}

func TestIngestDeploymentState(t *testing.T) {
	svc, st := newService(t)
	pnl := -42.0
	dep := model.Deployment{
		ID: "deployment-000001", StrategyID: "strategy-000001",
		Status: model.DeploymentRunning, LatestPnl: &pnl,
	}

	lesson, written := svc.IngestDeploymentState(rctx, dep)
	assert.True(t, written)
	assert.Equal(t, CategoryDeploymentState, lesson.Category)
	assert.Contains(t, lesson.Summary, "-42.00")

	_, written = svc.IngestDeploymentState(rctx, dep)
	assert.False(t, written)

	// PnL change is a distinct event.
	pnl2 := -50.0
	dep.LatestPnl = &pnl2
	_, written = svc.IngestDeploymentState(rctx, dep)
	assert.True(t, written)
	assert.Len(t, st.ListLessons(rctx), 2)
}

func TestQuery_ScoresAndFilters(t *testing.T) {
	svc, st := newService(t)
	st.AddPattern(rctx, model.Pattern{
		Name: "Momentum breakout", Description: "rides trending markets",
		PatternType: "momentum", SuitableRegimes: []string{"trending"},
		Assets: []string{"BTCUSDT"},
	})
	st.AddPattern(rctx, model.Pattern{
		Name: "Mean reversion", Description: "fades extremes in ranging markets",
		PatternType: "mean_reversion", SuitableRegimes: []string{"ranging"},
		Assets: []string{"ETHUSDT"},
	})
	st.AddLesson(rctx, model.Lesson{Category: "backtest_completed", Summary: "momentum strategy returned 12%"})

	results := svc.Query(rctx, model.KnowledgeQueryRequest{Query: "momentum"})
	require.Len(t, results, 2)
	assert.Equal(t, "pattern", results[0].Kind, "patterns outrank lessons")
	assert.Equal(t, "Momentum breakout", results[0].Pattern.Name)
	assert.Equal(t, "lesson", results[1].Kind)
	assert.Greater(t, results[0].Score, results[1].Score)

	// Asset filter drops non-overlapping patterns; matching is case-insensitive.
	results = svc.Query(rctx, model.KnowledgeQueryRequest{Query: "MOMENTUM", Assets: []string{"ethusdt"}})
	for _, r := range results {
		assert.NotEqual(t, "pattern", r.Kind)
	}
}

func TestQuery_LimitAndNoMatches(t *testing.T) {
	svc, st := newService(t)
	for i := 0; i < 5; i++ {
		st.AddLesson(rctx, model.Lesson{Category: "deployment_state", Summary: "deployment running"})
	}

	results := svc.Query(rctx, model.KnowledgeQueryRequest{Query: "running", Limit: 3})
	assert.Len(t, results, 3)

	assert.Empty(t, svc.Query(rctx, model.KnowledgeQueryRequest{Query: "nothing matches this"}))
}

func TestQuery_TenantScoped(t *testing.T) {
	svc, st := newService(t)
	other := model.RequestContext{TenantID: "tenant-002", UserID: "user-002"}
	st.AddPattern(other, model.Pattern{Name: "Momentum breakout"})

	assert.Empty(t, svc.Query(rctx, model.KnowledgeQueryRequest{Query: "momentum"}))
}
