package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// CreateBacktest allocates an ID and inserts the backtest atomically.
func (s *Store) CreateBacktest(rctx model.RequestContext, bt model.Backtest) model.Backtest {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	bt.ID = s.nextIDLocked("backtest")
	if bt.Status == "" {
		bt.Status = model.BacktestQueued
	}
	bt.CreatedAt = now
	bt.UpdatedAt = now
	bt.TenantID = rctx.TenantID
	bt.UserID = rctx.UserID
	s.backtests[bt.ID] = bt
	return bt
}

// GetBacktest returns a tenant-scoped backtest.
func (s *Store) GetBacktest(rctx model.RequestContext, id string) (model.Backtest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bt, ok := s.backtests[id]
	if !ok || !owned(bt.TenantID, bt.UserID, rctx) {
		return model.Backtest{}, ErrNotFound
	}
	return bt, nil
}

// ListBacktests returns all backtests visible to the identity, oldest first.
func (s *Store) ListBacktests(rctx model.RequestContext) []model.Backtest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Backtest
	for _, bt := range s.backtests {
		if owned(bt.TenantID, bt.UserID, rctx) {
			out = append(out, bt)
		}
	}
	sortByCreated(out,
		func(x model.Backtest) time.Time { return x.CreatedAt },
		func(x model.Backtest) string { return x.ID })
	return out
}

// UpdateBacktest applies mutate under the write lock.
func (s *Store) UpdateBacktest(rctx model.RequestContext, id string, mutate func(*model.Backtest)) (model.Backtest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bt, ok := s.backtests[id]
	if !ok || !owned(bt.TenantID, bt.UserID, rctx) {
		return model.Backtest{}, ErrNotFound
	}
	mutate(&bt)
	bt.UpdatedAt = time.Now().UTC()
	s.backtests[id] = bt
	return bt, nil
}
