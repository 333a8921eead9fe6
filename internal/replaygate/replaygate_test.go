package replaygate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

var rctx = model.RequestContext{TenantID: "tenant-001", UserID: "user-001", RequestID: "req-1"}

func newGate(t *testing.T) (*Gate, *store.Store) {
	t.Helper()
	st := store.New(nil, time.Minute)
	return NewGate(st), st
}

func TestEvaluate_ExactThresholdIsPass(t *testing.T) {
	g, _ := newGate(t)

	// delta = 0.7 - 0.2 = 0.5, equal to the threshold: not a failure.
	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineDecision: model.DecisionPass, BaselineDriftPct: 0.2,
		CandidateDecision: model.DecisionPass, CandidateDriftPct: 0.7,
		DriftThresholdPct: 0.5, BlockMergeOnFail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionPass, result.Decision)
	assert.Equal(t, 0.5, result.DriftDeltaPct)
	assert.Equal(t, GatePass, result.MergeGateStatus)
	assert.Empty(t, result.Reasons)
}

func TestEvaluate_StrictlyAboveThresholdFails(t *testing.T) {
	g, _ := newGate(t)

	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineDecision: model.DecisionPass, BaselineDriftPct: 0.2,
		CandidateDecision: model.DecisionPass, CandidateDriftPct: 0.700001,
		DriftThresholdPct: 0.5, BlockMergeOnFail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionFail, result.Decision)
	assert.Contains(t, result.Reasons, ReasonDriftExceeded)
	assert.Equal(t, GateBlocked, result.MergeGateStatus)
	assert.Equal(t, GatePass, result.ReleaseGateStatus, "release blocking not requested")
}

func TestEvaluate_DriftImprovementNeverFails(t *testing.T) {
	g, _ := newGate(t)

	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineDecision: model.DecisionPass, BaselineDriftPct: 5,
		CandidateDecision: model.DecisionPass, CandidateDriftPct: 1,
		DriftThresholdPct: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionPass, result.Decision)
	assert.Equal(t, float64(0), result.DriftDeltaPct)
}

func TestEvaluate_DecisionRegression(t *testing.T) {
	g, _ := newGate(t)

	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineDecision: model.DecisionPass, BaselineDriftPct: 0,
		CandidateDecision: model.DecisionConditionalPass, CandidateDriftPct: 0,
		DriftThresholdPct: 1, BlockReleaseOnFail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionFail, result.Decision)
	assert.Contains(t, result.Reasons, ReasonDecisionRegressed)
	assert.Equal(t, GateBlocked, result.ReleaseGateStatus)
}

func TestEvaluate_ConditionalPassBlocksOnAgentFlags(t *testing.T) {
	g, _ := newGate(t)

	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineDecision: model.DecisionConditionalPass, BaselineDriftPct: 0,
		CandidateDecision: model.DecisionConditionalPass, CandidateDriftPct: 0,
		DriftThresholdPct: 1,
		BlockMergeOnAgentFail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionConditionalPass, result.Decision)
	assert.Equal(t, GateBlocked, result.MergeGateStatus)
	assert.Equal(t, GatePass, result.ReleaseGateStatus)
}

func TestEvaluate_StoredBaseline(t *testing.T) {
	g, st := newGate(t)
	baseline := st.CreateBaseline(rctx, model.ValidationBaseline{
		ArtifactRef: "release-1.2.0", Decision: model.DecisionPass, DriftPct: 0.1,
	})

	result, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineID:        baseline.ID,
		CandidateDecision: model.DecisionPass, CandidateDriftPct: 0.2,
		DriftThresholdPct: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionPass, result.Decision)
	assert.Equal(t, baseline.ID, result.BaselineID)
	assert.InDelta(t, 0.1, result.DriftDeltaPct, 1e-9)
}

func TestEvaluate_UnknownBaselineID(t *testing.T) {
	g, _ := newGate(t)
	_, err := g.Evaluate(rctx, model.ReplayRequest{
		BaselineID:        "baseline-does-not-exist",
		CandidateDecision: model.DecisionPass,
	})
	var pe *model.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.ErrCodeBaselineNotFound, pe.Code)
}

func TestEvaluate_InvalidInputs(t *testing.T) {
	g, _ := newGate(t)

	cases := []model.ReplayRequest{
		{BaselineDecision: model.DecisionPass, CandidateDecision: model.DecisionPass, CandidateDriftPct: math.NaN()},
		{BaselineDecision: model.DecisionPass, CandidateDecision: model.DecisionPass, BaselineDriftPct: math.Inf(1)},
		{BaselineDecision: model.DecisionPass, CandidateDecision: model.DecisionPass, DriftThresholdPct: -0.1},
		{BaselineDecision: "maybe", CandidateDecision: model.DecisionPass},
		{BaselineDecision: model.DecisionPass, CandidateDecision: "sort-of"},
	}
	for _, req := range cases {
		_, err := g.Evaluate(rctx, req)
		var pe *model.PlatformError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, model.ErrCodeReplayInputInvalid, pe.Code)
	}
}
