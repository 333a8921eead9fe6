package model

import "time"

// RunState is the orchestrator run lifecycle state.
type RunState string

const (
	RunReceived        RunState = "received"
	RunQueued          RunState = "queued"
	RunExecuting       RunState = "executing"
	RunAwaitingTool    RunState = "awaiting_tool"
	RunAwaitingConfirm RunState = "awaiting_user_confirmation"
	RunCompleted       RunState = "completed"
	RunFailed          RunState = "failed"
	RunCancelled       RunState = "cancelled"
)

// OrchestratorRun is a unit of orchestrator work moving through the queue.
type OrchestratorRun struct {
	ID                 string         `json:"id"`
	State              RunState       `json:"state"`
	Priority           int            `json:"priority"`
	Intent             string         `json:"intent,omitempty"`
	Attempts           int            `json:"attempts"`
	Failures           int            `json:"failures"`
	CancellationReason string         `json:"cancellationReason,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	TenantID           string         `json:"tenantId"`
	UserID             string         `json:"userId"`
}

// Terminal reports whether the run is in a terminal state.
func (r OrchestratorRun) Terminal() bool {
	switch r.State {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// ExecutionTrace is one step in a run's audit trail. Every queue transition
// and retry decision emits exactly one trace record.
type ExecutionTrace struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId"`
	Event     string         `json:"event"`
	Step      int            `json:"step"`
	FromState RunState       `json:"fromState"`
	ToState   RunState       `json:"toState"`
	RequestID string         `json:"requestId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	TenantID  string         `json:"tenantId"`
	UserID    string         `json:"userId"`
}
