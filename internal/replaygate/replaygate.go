// Package replaygate implements the merge/release CI check that compares a
// candidate validation run against a stored baseline.
package replaygate

import (
	"fmt"
	"math"
	"net/http"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Failure reasons attached to the replay result.
const (
	ReasonDecisionRegressed = "candidate_decision_regressed_from_baseline"
	ReasonDriftExceeded     = "metric_drift_threshold_exceeded"
)

// Gate statuses.
const (
	GatePass    = "pass"
	GateBlocked = "blocked"
)

// Result is the replay gate verdict.
type Result struct {
	Decision          model.ValidationDecision `json:"decision"`
	Reasons           []string                 `json:"reasons,omitempty"`
	DriftDeltaPct     float64                  `json:"driftDeltaPct"`
	MergeGateStatus   string                   `json:"mergeGateStatus"`
	ReleaseGateStatus string                   `json:"releaseGateStatus"`
	BaselineID        string                   `json:"baselineId,omitempty"`
}

// Stronger decisions rank higher; any drop in rank is a regression.
var decisionRank = map[model.ValidationDecision]int{
	model.DecisionPass:            3,
	model.DecisionConditionalPass: 2,
	model.DecisionUnknown:         1,
	model.DecisionFail:            0,
}

// Gate evaluates replay requests.
type Gate struct {
	st *store.Store
}

// NewGate creates the replay gate.
func NewGate(st *store.Store) *Gate {
	return &Gate{st: st}
}

func invalidInput(format string, args ...any) *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeReplayInputInvalid, http.StatusBadRequest,
		fmt.Sprintf(format, args...))
}

func validDrift(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalidInput("%s must be finite", name)
	}
	if v < 0 {
		return invalidInput("%s must be non-negative", name)
	}
	return nil
}

func validDecision(name string, d model.ValidationDecision) error {
	if _, ok := decisionRank[d]; !ok {
		return invalidInput("%s %q is not a valid decision", name, d)
	}
	return nil
}

// Evaluate runs the replay decision procedure. The baseline comes from the
// store when BaselineID is set, otherwise from the inline baseline fields.
func (g *Gate) Evaluate(rctx model.RequestContext, req model.ReplayRequest) (Result, error) {
	baselineDecision := req.BaselineDecision
	baselineDrift := req.BaselineDriftPct
	baselineID := ""

	if req.BaselineID != "" {
		baseline, err := g.st.GetBaseline(rctx, req.BaselineID)
		if err != nil {
			return Result{}, model.NotFound(model.ErrCodeBaselineNotFound, req.BaselineID)
		}
		baselineDecision = baseline.Decision
		baselineDrift = baseline.DriftPct
		baselineID = baseline.ID
	}

	if err := validDecision("baselineDecision", baselineDecision); err != nil {
		return Result{}, err
	}
	if err := validDecision("candidateDecision", req.CandidateDecision); err != nil {
		return Result{}, err
	}
	for _, check := range []struct {
		name string
		v    float64
	}{
		{"baselineDriftPct", baselineDrift},
		{"candidateDriftPct", req.CandidateDriftPct},
		{"driftThresholdPct", req.DriftThresholdPct},
	} {
		if err := validDrift(check.name, check.v); err != nil {
			return Result{}, err
		}
	}

	decision := req.CandidateDecision
	var reasons []string

	if decisionRank[req.CandidateDecision] < decisionRank[baselineDecision] {
		decision = model.DecisionFail
		reasons = append(reasons, ReasonDecisionRegressed)
	}

	// Drift only counts against the candidate when it grew; equality with the
	// threshold is still a pass.
	delta := math.Max(0, req.CandidateDriftPct-baselineDrift)
	if delta > req.DriftThresholdPct {
		decision = model.DecisionFail
		reasons = append(reasons, ReasonDriftExceeded)
	}

	result := Result{
		Decision:          decision,
		Reasons:           reasons,
		DriftDeltaPct:     delta,
		MergeGateStatus:   GatePass,
		ReleaseGateStatus: GatePass,
		BaselineID:        baselineID,
	}

	switch decision {
	case model.DecisionFail:
		if req.BlockMergeOnFail {
			result.MergeGateStatus = GateBlocked
		}
		if req.BlockReleaseOnFail {
			result.ReleaseGateStatus = GateBlocked
		}
	case model.DecisionConditionalPass:
		if req.BlockMergeOnAgentFail {
			result.MergeGateStatus = GateBlocked
		}
		if req.BlockReleaseOnAgentFail {
			result.ReleaseGateStatus = GateBlocked
		}
	}
	return result, nil
}
