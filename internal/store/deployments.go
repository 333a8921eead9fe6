package store

import (
	"time"

	"github.com/lonalabs/lona/internal/model"
)

// activeDeploymentStates count toward the aggregate capital limit and are
// eligible for reconciliation.
var activeDeploymentStates = map[model.DeploymentStatus]bool{
	model.DeploymentQueued:  true,
	model.DeploymentRunning: true,
	model.DeploymentPaused:  true,
}

// CreateDeployment allocates an ID and inserts the deployment atomically.
func (s *Store) CreateDeployment(rctx model.RequestContext, dep model.Deployment) model.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	dep.ID = s.nextIDLocked("deployment")
	if dep.Status == "" {
		dep.Status = model.DeploymentQueued
	}
	dep.CreatedAt = now
	dep.UpdatedAt = now
	dep.TenantID = rctx.TenantID
	dep.UserID = rctx.UserID
	s.deployments[dep.ID] = dep
	return dep
}

// GetDeployment returns a tenant-scoped deployment.
func (s *Store) GetDeployment(rctx model.RequestContext, id string) (model.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, ok := s.deployments[id]
	if !ok || !owned(dep.TenantID, dep.UserID, rctx) {
		return model.Deployment{}, ErrNotFound
	}
	return dep, nil
}

// ListDeployments returns all deployments visible to the identity, oldest first.
func (s *Store) ListDeployments(rctx model.RequestContext) []model.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Deployment
	for _, dep := range s.deployments {
		if owned(dep.TenantID, dep.UserID, rctx) {
			out = append(out, dep)
		}
	}
	sortByCreated(out,
		func(x model.Deployment) time.Time { return x.CreatedAt },
		func(x model.Deployment) string { return x.ID })
	return out
}

// ListActiveDeployments returns the identity's deployments in an active state.
func (s *Store) ListActiveDeployments(rctx model.RequestContext) []model.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Deployment
	for _, dep := range s.deployments {
		if owned(dep.TenantID, dep.UserID, rctx) && activeDeploymentStates[dep.Status] {
			out = append(out, dep)
		}
	}
	sortByCreated(out,
		func(x model.Deployment) time.Time { return x.CreatedAt },
		func(x model.Deployment) string { return x.ID })
	return out
}

// ActiveCapital sums the capital of the identity's active deployments.
func (s *Store) ActiveCapital(rctx model.RequestContext) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, dep := range s.deployments {
		if owned(dep.TenantID, dep.UserID, rctx) && activeDeploymentStates[dep.Status] {
			total += dep.Capital
		}
	}
	return total
}

// SnapshotActiveDeployments returns every active deployment across all
// tenants. Used by the background reconciler only; results still carry their
// owning tenant/user so drift events stay scoped.
func (s *Store) SnapshotActiveDeployments() []model.Deployment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Deployment
	for _, dep := range s.deployments {
		if activeDeploymentStates[dep.Status] || dep.Status == model.DeploymentStopping {
			out = append(out, dep)
		}
	}
	sortByCreated(out,
		func(x model.Deployment) time.Time { return x.CreatedAt },
		func(x model.Deployment) string { return x.ID })
	return out
}

// UpdateDeployment applies mutate under the write lock.
func (s *Store) UpdateDeployment(rctx model.RequestContext, id string, mutate func(*model.Deployment)) (model.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dep, ok := s.deployments[id]
	if !ok || !owned(dep.TenantID, dep.UserID, rctx) {
		return model.Deployment{}, ErrNotFound
	}
	mutate(&dep)
	dep.UpdatedAt = time.Now().UTC()
	s.deployments[id] = dep
	return dep, nil
}
