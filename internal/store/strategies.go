package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// CreateStrategy allocates an ID and inserts the strategy atomically.
func (s *Store) CreateStrategy(rctx model.RequestContext, strat model.Strategy) model.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	strat.ID = s.nextIDLocked("strategy")
	strat.CreatedAt = now
	strat.UpdatedAt = now
	strat.TenantID = rctx.TenantID
	strat.UserID = rctx.UserID
	s.strategies[strat.ID] = strat
	return strat
}

// GetStrategy returns a tenant-scoped strategy.
func (s *Store) GetStrategy(rctx model.RequestContext, id string) (model.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strat, ok := s.strategies[id]
	if !ok || !owned(strat.TenantID, strat.UserID, rctx) {
		return model.Strategy{}, ErrNotFound
	}
	return strat, nil
}

// ListStrategies returns all strategies visible to the identity, oldest first.
func (s *Store) ListStrategies(rctx model.RequestContext) []model.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Strategy
	for _, strat := range s.strategies {
		if owned(strat.TenantID, strat.UserID, rctx) {
			out = append(out, strat)
		}
	}
	sortByCreated(out,
		func(x model.Strategy) time.Time { return x.CreatedAt },
		func(x model.Strategy) string { return x.ID })
	return out
}

// UpdateStrategy applies mutate under the write lock. Strategies are never
// deleted; updates touch name/description/provider bookkeeping only.
func (s *Store) UpdateStrategy(rctx model.RequestContext, id string, mutate func(*model.Strategy)) (model.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	strat, ok := s.strategies[id]
	if !ok || !owned(strat.TenantID, strat.UserID, rctx) {
		return model.Strategy{}, ErrNotFound
	}
	mutate(&strat)
	strat.UpdatedAt = time.Now().UTC()
	s.strategies[id] = strat
	return strat, nil
}
