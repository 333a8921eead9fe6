package queue

import (
	"github.com/lonalabs/lona/internal/model"
)

// Retry trace events.
const (
	EventRetryAttemptStarted   = "retry_attempt_started"
	EventRetryFailureRecorded  = "retry_failure_recorded"
	EventRetryScheduled        = "retry_scheduled"
	EventRetrySuccess          = "retry_success"
	EventRetryTerminalDecision = "retry_terminal_decision"
)

// Retry decision reasons.
const (
	ReasonAttemptBudgetExhausted = "attempt_budget_exhausted"
	ReasonFailureBudgetExhausted = "failure_budget_exhausted"
	ReasonRetrySucceeded         = "retry_succeeded"
)

// Budget bounds how often a run may be retried.
type Budget struct {
	MaxAttempts        int     `json:"maxAttempts"`
	MaxFailures        int     `json:"maxFailures"`
	BaseBackoffSeconds float64 `json:"baseBackoffSeconds"`
	MaxBackoffSeconds  float64 `json:"maxBackoffSeconds"`
}

// DefaultBudget is applied to runs that carry no budget of their own.
func DefaultBudget() Budget {
	return Budget{MaxAttempts: 3, MaxFailures: 3, BaseBackoffSeconds: 1, MaxBackoffSeconds: 60}
}

// Decision is the outcome of recording a failure against a budget.
type Decision struct {
	RetryAllowed      bool           `json:"retryAllowed"`
	Terminal          bool           `json:"terminal"`
	NextState         model.RunState `json:"nextState"`
	RetryAfterSeconds float64        `json:"retryAfterSeconds"`
	Reason            string         `json:"reason,omitempty"`
}

// backoff doubles per recorded failure, capped at the budget maximum.
func backoff(b Budget, failures int) float64 {
	d := b.BaseBackoffSeconds
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= b.MaxBackoffSeconds {
			return b.MaxBackoffSeconds
		}
	}
	if d > b.MaxBackoffSeconds {
		return b.MaxBackoffSeconds
	}
	return d
}

// decide evaluates the budget after a failure has been counted.
func decide(b Budget, attempts, failures int) Decision {
	switch {
	case failures >= b.MaxFailures:
		return Decision{Terminal: true, NextState: model.RunFailed, Reason: ReasonFailureBudgetExhausted}
	case attempts >= b.MaxAttempts:
		return Decision{Terminal: true, NextState: model.RunFailed, Reason: ReasonAttemptBudgetExhausted}
	default:
		return Decision{
			RetryAllowed:      true,
			NextState:         model.RunQueued,
			RetryAfterSeconds: backoff(b, failures),
		}
	}
}

// NoteAttemptStarted traces the start of a retry attempt. First attempts are
// not retries and emit nothing.
func (q *Queue) NoteAttemptStarted(rctx model.RequestContext, run model.OrchestratorRun) {
	if run.Attempts <= 1 {
		return
	}
	q.trace(rctx, run, EventRetryAttemptStarted, run.State,
		map[string]any{"attempt": run.Attempts})
}

// RecordFailure counts a failure against the run's budget and either
// reschedules the run with backoff or fails it terminally.
func (q *Queue) RecordFailure(rctx model.RequestContext, runID string, budget Budget, cause string) (Decision, error) {
	run, err := q.st.UpdateRun(rctx, runID, func(r *model.OrchestratorRun) {
		r.Failures++
	})
	if err != nil {
		return Decision{}, model.NotFound(model.ErrCodeRunNotFound, runID)
	}
	q.trace(rctx, run, EventRetryFailureRecorded, run.State,
		map[string]any{"failures": run.Failures, "cause": cause})

	decision := decide(budget, run.Attempts, run.Failures)
	if decision.Terminal {
		failed, err := q.Fail(rctx, runID, decision.Reason)
		if err != nil {
			return Decision{}, err
		}
		q.trace(rctx, failed, EventRetryTerminalDecision, failed.State,
			map[string]any{"reason": decision.Reason})
		return decision, nil
	}

	if _, err := q.Requeue(rctx, runID, EventRetryScheduled,
		map[string]any{"retryAfterSeconds": decision.RetryAfterSeconds}); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// RecordSuccess completes a run, noting when the success followed retries.
func (q *Queue) RecordSuccess(rctx model.RequestContext, runID string) (model.OrchestratorRun, error) {
	run, err := q.Complete(rctx, runID)
	if err != nil {
		return model.OrchestratorRun{}, err
	}
	if run.Failures > 0 {
		q.trace(rctx, run, EventRetrySuccess, run.State,
			map[string]any{"reason": ReasonRetrySucceeded, "failures": run.Failures})
	}
	return run, nil
}
