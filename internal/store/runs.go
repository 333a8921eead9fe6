package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/lonalabs/lona/internal/model"
)

// CreateRun allocates an ID and inserts the orchestrator run atomically.
func (s *Store) CreateRun(rctx model.RequestContext, run model.OrchestratorRun) model.OrchestratorRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	run.ID = s.nextIDLocked("run")
	if run.State == "" {
		run.State = model.RunReceived
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	run.TenantID = rctx.TenantID
	run.UserID = rctx.UserID
	s.runs[run.ID] = run
	return run
}

// GetRun returns a tenant-scoped orchestrator run.
func (s *Store) GetRun(rctx model.RequestContext, id string) (model.OrchestratorRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok || !owned(run.TenantID, run.UserID, rctx) {
		return model.OrchestratorRun{}, ErrNotFound
	}
	return run, nil
}

// UpdateRun applies mutate under the write lock.
func (s *Store) UpdateRun(rctx model.RequestContext, id string, mutate func(*model.OrchestratorRun)) (model.OrchestratorRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok || !owned(run.TenantID, run.UserID, rctx) {
		return model.OrchestratorRun{}, ErrNotFound
	}
	mutate(&run)
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return run, nil
}

// AppendTrace records an execution-trace step for a run.
func (s *Store) AppendTrace(tr model.ExecutionTrace) model.ExecutionTrace {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr.ID = uuid.NewString()
	tr.CreatedAt = time.Now().UTC()
	s.traces = append(s.traces, tr)
	return tr
}

// ListTraces returns the traces for a run in append order.
func (s *Store) ListTraces(rctx model.RequestContext, runID string) []model.ExecutionTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ExecutionTrace
	for _, tr := range s.traces {
		if tr.RunID == runID && owned(tr.TenantID, tr.UserID, rctx) {
			out = append(out, tr)
		}
	}
	return out
}
