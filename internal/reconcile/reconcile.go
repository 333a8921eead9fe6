// Package reconcile drives convergence between platform state and provider
// state. Passes are throttled per (tenant, resource type) so list endpoints
// can trigger them opportunistically; a background scheduler calls the same
// entry points at a longer cadence.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/fsm"
	"github.com/lonalabs/lona/internal/knowledge"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Resource types recorded on drift events.
const (
	ResourceDeployment = "deployment"
	ResourceOrder      = "order"
)

// Provider calls per pass run concurrently up to this limit.
const fanOutLimit = 4

type throttleKey struct {
	tenantID     string
	resourceType string
}

// Reconciler reconciles deployments and orders against the live engine.
type Reconciler struct {
	st     *store.Store
	engine adapters.LiveEngine
	know   *knowledge.Service
	logger *slog.Logger

	minInterval time.Duration
	mu          sync.Mutex
	limiters    map[throttleKey]*rate.Limiter
}

// New creates a reconciler. minInterval bounds how often a pass may run per
// (tenant, resource type); zero disables throttling.
func New(st *store.Store, engine adapters.LiveEngine, know *knowledge.Service,
	minInterval time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		st:          st,
		engine:      engine,
		know:        know,
		logger:      logger,
		minInterval: minInterval,
		limiters:    make(map[throttleKey]*rate.Limiter),
	}
}

// allow consults the per-scope limiter. One pass per minInterval per scope.
func (r *Reconciler) allow(tenantID, resourceType string) bool {
	if r.minInterval <= 0 {
		return true
	}
	key := throttleKey{tenantID: tenantID, resourceType: resourceType}
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(r.minInterval), 1)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

func driftMeta(rctx model.RequestContext, extra map[string]string) map[string]string {
	meta := map[string]string{
		"tenantId": rctx.TenantID,
		"userId":   rctx.UserID,
	}
	if rctx.RequestID != "" {
		meta["requestId"] = rctx.RequestID
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// reconcileDeployment fetches one deployment's provider state and folds it in.
func (r *Reconciler) reconcileDeployment(ctx context.Context, rctx model.RequestContext, dep model.Deployment) error {
	state, err := r.engine.GetDeployment(ctx, dep.ProviderRefID)
	if err != nil {
		r.logger.Warn("deployment reconcile fetch failed",
			"deploymentId", dep.ID, "providerRefId", dep.ProviderRefID, "error", err)
		return nil
	}

	next, stateChanged := fsm.ApplyDeploymentProviderStatus(dep.Status, state.Status)
	pnlChanged := state.LatestPnl != nil &&
		(dep.LatestPnl == nil || *dep.LatestPnl != *state.LatestPnl)

	now := time.Now().UTC()
	updated, err := r.st.UpdateDeployment(rctx, dep.ID, func(d *model.Deployment) {
		if stateChanged {
			d.Status = next
		}
		if state.LatestPnl != nil {
			d.LatestPnl = state.LatestPnl
		}
		d.LastReconciledAt = &now
	})
	if err != nil {
		return err
	}

	if stateChanged || pnlChanged {
		extra := map[string]string{}
		if state.LatestPnl != nil {
			extra["latestPnl"] = fmt.Sprintf("%.2f", *state.LatestPnl)
		}
		r.st.AppendDriftEvent(model.DriftEvent{
			ResourceType:  ResourceDeployment,
			ResourceID:    dep.ID,
			ProviderRefID: dep.ProviderRefID,
			PreviousState: string(dep.Status),
			ProviderState: state.Status,
			Resolution:    string(updated.Status),
			Metadata:      driftMeta(rctx, extra),
			TenantID:      rctx.TenantID,
			UserID:        rctx.UserID,
		})
		r.know.IngestDeploymentState(rctx, updated)
		r.logger.Info("deployment drift reconciled",
			"deploymentId", dep.ID, "from", dep.Status, "to", updated.Status,
			"providerState", state.Status)
	}
	return nil
}

// ReconcileDeployments runs one throttled pass over a tenant's active
// deployments.
func (r *Reconciler) ReconcileDeployments(ctx context.Context, rctx model.RequestContext) error {
	if !r.allow(rctx.TenantID, ResourceDeployment) {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, dep := range r.st.ListActiveDeployments(rctx) {
		if dep.ProviderRefID == "" {
			continue
		}
		dep := dep
		g.Go(func() error { return r.reconcileDeployment(ctx, rctx, dep) })
	}
	return g.Wait()
}

// reconcileOrder fetches one order's provider state and folds it in.
func (r *Reconciler) reconcileOrder(ctx context.Context, rctx model.RequestContext, ord model.Order) error {
	provider, err := r.engine.GetOrder(ctx, ord.ProviderOrderID)
	if err != nil {
		r.logger.Warn("order reconcile fetch failed",
			"orderId", ord.ID, "providerOrderId", ord.ProviderOrderID, "error", err)
		return nil
	}

	next, changed := fsm.ApplyOrderProviderStatus(ord.Status, provider.Status)
	now := time.Now().UTC()
	updated, err := r.st.UpdateOrder(rctx, ord.ID, func(o *model.Order) {
		if changed {
			o.Status = next
		}
		o.LastReconciledAt = &now
	})
	if err != nil {
		return err
	}

	if changed {
		r.st.AppendDriftEvent(model.DriftEvent{
			ResourceType:  ResourceOrder,
			ResourceID:    ord.ID,
			ProviderRefID: ord.ProviderOrderID,
			PreviousState: string(ord.Status),
			ProviderState: provider.Status,
			Resolution:    string(updated.Status),
			Metadata:      driftMeta(rctx, map[string]string{"symbol": ord.Symbol}),
			TenantID:      rctx.TenantID,
			UserID:        rctx.UserID,
		})
		r.logger.Info("order drift reconciled",
			"orderId", ord.ID, "from", ord.Status, "to", updated.Status,
			"providerState", provider.Status)
	}
	return nil
}

// ReconcileOrders runs one throttled pass over a tenant's pending orders.
func (r *Reconciler) ReconcileOrders(ctx context.Context, rctx model.RequestContext) error {
	if !r.allow(rctx.TenantID, ResourceOrder) {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, ord := range r.st.ListPendingOrders(rctx) {
		if ord.ProviderOrderID == "" {
			continue
		}
		ord := ord
		g.Go(func() error { return r.reconcileOrder(ctx, rctx, ord) })
	}
	return g.Wait()
}

// runOnce sweeps every tenant's active resources through the throttled entry
// points.
func (r *Reconciler) runOnce(ctx context.Context) {
	seen := make(map[model.RequestContext]bool)
	for _, dep := range r.st.SnapshotActiveDeployments() {
		rctx := model.RequestContext{TenantID: dep.TenantID, UserID: dep.UserID}
		if seen[rctx] {
			continue
		}
		seen[rctx] = true
		if err := r.ReconcileDeployments(ctx, rctx); err != nil {
			r.logger.Error("background deployment reconcile failed", "tenantId", rctx.TenantID, "error", err)
		}
	}
	seen = make(map[model.RequestContext]bool)
	for _, ord := range r.st.SnapshotPendingOrders() {
		rctx := model.RequestContext{TenantID: ord.TenantID, UserID: ord.UserID}
		if seen[rctx] {
			continue
		}
		seen[rctx] = true
		if err := r.ReconcileOrders(ctx, rctx); err != nil {
			r.logger.Error("background order reconcile failed", "tenantId", rctx.TenantID, "error", err)
		}
	}
}

// Run reconciles on a fixed cadence until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, cadence time.Duration) {
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}
