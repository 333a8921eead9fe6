package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// CreateValidationRun allocates an ID and inserts the validation run.
func (s *Store) CreateValidationRun(rctx model.RequestContext, run model.ValidationRun) model.ValidationRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = s.nextIDLocked("vrun")
	run.CreatedAt = time.Now().UTC()
	run.TenantID = rctx.TenantID
	run.UserID = rctx.UserID
	s.validationRuns[run.ID] = run
	return run
}

// CreateBaseline allocates an ID and inserts the validation baseline.
func (s *Store) CreateBaseline(rctx model.RequestContext, b model.ValidationBaseline) model.ValidationBaseline {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.nextIDLocked("baseline")
	b.CreatedAt = time.Now().UTC()
	b.TenantID = rctx.TenantID
	b.UserID = rctx.UserID
	s.baselines[b.ID] = b
	return b
}

// GetBaseline returns a tenant-scoped baseline.
func (s *Store) GetBaseline(rctx model.RequestContext, id string) (model.ValidationBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.baselines[id]
	if !ok || !owned(b.TenantID, b.UserID, rctx) {
		return model.ValidationBaseline{}, ErrNotFound
	}
	return b, nil
}
