package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// CreateOrder allocates an ID and inserts the order atomically.
func (s *Store) CreateOrder(rctx model.RequestContext, ord model.Order) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ord.ID = s.nextIDLocked("order")
	if ord.Status == "" {
		ord.Status = model.OrderPending
	}
	ord.CreatedAt = now
	ord.UpdatedAt = now
	ord.TenantID = rctx.TenantID
	ord.UserID = rctx.UserID
	s.orders[ord.ID] = ord
	return ord
}

// GetOrder returns a tenant-scoped order.
func (s *Store) GetOrder(rctx model.RequestContext, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[id]
	if !ok || !owned(ord.TenantID, ord.UserID, rctx) {
		return model.Order{}, ErrNotFound
	}
	return ord, nil
}

// ListOrders returns all orders visible to the identity, oldest first.
func (s *Store) ListOrders(rctx model.RequestContext) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, ord := range s.orders {
		if owned(ord.TenantID, ord.UserID, rctx) {
			out = append(out, ord)
		}
	}
	sortByCreated(out,
		func(x model.Order) time.Time { return x.CreatedAt },
		func(x model.Order) string { return x.ID })
	return out
}

// ListPendingOrders returns the identity's orders still pending.
func (s *Store) ListPendingOrders(rctx model.RequestContext) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, ord := range s.orders {
		if owned(ord.TenantID, ord.UserID, rctx) && ord.Status == model.OrderPending {
			out = append(out, ord)
		}
	}
	sortByCreated(out,
		func(x model.Order) time.Time { return x.CreatedAt },
		func(x model.Order) string { return x.ID })
	return out
}

// SnapshotPendingOrders returns every pending order across all tenants for
// the background reconciler.
func (s *Store) SnapshotPendingOrders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Order
	for _, ord := range s.orders {
		if ord.Status == model.OrderPending {
			out = append(out, ord)
		}
	}
	sortByCreated(out,
		func(x model.Order) time.Time { return x.CreatedAt },
		func(x model.Order) string { return x.ID })
	return out
}

// UpdateOrder applies mutate under the write lock.
func (s *Store) UpdateOrder(rctx model.RequestContext, id string, mutate func(*model.Order)) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[id]
	if !ok || !owned(ord.TenantID, ord.UserID, rctx) {
		return model.Order{}, ErrNotFound
	}
	mutate(&ord)
	ord.UpdatedAt = time.Now().UTC()
	s.orders[id] = ord
	return ord, nil
}

// UpsertPortfolio stores the portfolio snapshot for (tenant, mode).
func (s *Store) UpsertPortfolio(rctx model.RequestContext, pf model.Portfolio) model.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rctx.TenantID + "/" + string(pf.Mode)
	if existing, ok := s.portfolios[key]; ok {
		pf.ID = existing.ID
	} else {
		pf.ID = s.nextIDLocked("portfolio")
	}
	pf.TenantID = rctx.TenantID
	pf.UserID = rctx.UserID
	s.portfolios[key] = pf
	return pf
}

// GetPortfolio returns the portfolio snapshot for (tenant, mode).
func (s *Store) GetPortfolio(rctx model.RequestContext, mode model.DeploymentMode) (model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Portfolios are tenant-wide: any user of the tenant sees the same snapshot.
	pf, ok := s.portfolios[rctx.TenantID+"/"+string(mode)]
	if !ok || pf.TenantID != rctx.TenantID {
		return model.Portfolio{}, ErrNotFound
	}
	return pf, nil
}
