package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// CreateDataset allocates an ID and inserts the dataset atomically.
func (s *Store) CreateDataset(rctx model.RequestContext, ds model.Dataset) model.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ds.ID = s.nextIDLocked("dataset")
	if ds.Status == "" {
		ds.Status = model.DatasetInitialized
	}
	ds.CreatedAt = now
	ds.UpdatedAt = now
	ds.TenantID = rctx.TenantID
	ds.UserID = rctx.UserID
	s.datasets[ds.ID] = ds
	return ds
}

// GetDataset returns a tenant-scoped dataset.
func (s *Store) GetDataset(rctx model.RequestContext, id string) (model.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	if !ok || !owned(ds.TenantID, ds.UserID, rctx) {
		return model.Dataset{}, ErrNotFound
	}
	return ds, nil
}

// ListDatasets returns all datasets visible to the identity, oldest first.
func (s *Store) ListDatasets(rctx model.RequestContext) []model.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Dataset
	for _, ds := range s.datasets {
		if owned(ds.TenantID, ds.UserID, rctx) {
			out = append(out, ds)
		}
	}
	sortByCreated(out,
		func(x model.Dataset) time.Time { return x.CreatedAt },
		func(x model.Dataset) string { return x.ID })
	return out
}

// UpdateDataset applies mutate under the write lock.
func (s *Store) UpdateDataset(rctx model.RequestContext, id string, mutate func(*model.Dataset)) (model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[id]
	if !ok || !owned(ds.TenantID, ds.UserID, rctx) {
		return model.Dataset{}, ErrNotFound
	}
	mutate(&ds)
	ds.UpdatedAt = time.Now().UTC()
	s.datasets[id] = ds
	return ds, nil
}
