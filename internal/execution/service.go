// Package execution is the command service for the live-execution engine: the
// only component that issues side effects to it. Create commands are
// idempotent under a caller-supplied key; all commands pass the risk gate
// before any provider call.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/canonical"
	"github.com/lonalabs/lona/internal/fsm"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/risk"
	"github.com/lonalabs/lona/internal/store"
)

// Idempotency scopes, one per command family.
const (
	ScopeDeployments = "execution_commands_deployments"
	ScopeOrders      = "execution_commands_orders"
)

// Service routes side-effecting commands to the live engine.
type Service struct {
	st     *store.Store
	engine adapters.LiveEngine
	risk   *risk.Engine
	logger *slog.Logger
}

// NewService creates the command service.
func NewService(st *store.Store, engine adapters.LiveEngine, riskEngine *risk.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{st: st, engine: engine, risk: riskEngine, logger: logger}
}

// TranslateAdapterError maps adapter failures into the platform taxonomy.
// Non-adapter errors become opaque 500s.
func TranslateAdapterError(err error) *model.PlatformError {
	var pe *model.PlatformError
	if errors.As(err, &pe) {
		return pe
	}
	var ae *adapters.AdapterError
	if errors.As(err, &ae) {
		return model.NewPlatformError(ae.Code, ae.Status, ae.Message)
	}
	return model.Internal(err)
}

func idempotencyConflict() *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeIdempotencyConflict, http.StatusConflict,
		"idempotency key was already used with a different payload")
}

func idempotencyInProgress() *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeIdempotencyInProgress, http.StatusConflict,
		"a request with this idempotency key is still in progress")
}

// begin reserves the idempotency key. A replay decodes the cached entity into
// out and reports done=true.
func (s *Service) begin(rctx model.RequestContext, scope, key string, payload, out any) (done bool, err error) {
	if key == "" {
		return false, nil
	}
	fingerprint, err := canonical.Fingerprint(payload)
	if err != nil {
		return false, model.Internal(err)
	}
	lookup, err := s.st.BeginIdempotency(scope, rctx.TenantID, key, fingerprint)
	switch {
	case errors.Is(err, store.ErrIdempotencyPayloadMismatch):
		return false, idempotencyConflict()
	case errors.Is(err, store.ErrIdempotencyInProgress):
		return false, idempotencyInProgress()
	case err != nil:
		return false, model.Internal(err)
	}
	if !lookup.Completed {
		return false, nil
	}
	if err := json.Unmarshal(lookup.ResponseData, out); err != nil {
		return false, model.Internal(fmt.Errorf("idempotency replay decode: %w", err))
	}
	return true, nil
}

func (s *Service) complete(rctx model.RequestContext, scope, key string, status int, entity any) {
	if key == "" {
		return
	}
	if err := s.st.CompleteIdempotency(scope, rctx.TenantID, key, status, entity); err != nil {
		s.logger.Error("idempotency complete failed", "scope", scope, "error", err)
	}
}

func (s *Service) clear(rctx model.RequestContext, scope, key string) {
	if key != "" {
		s.st.ClearInProgressIdempotency(scope, rctx.TenantID, key)
	}
}

// CreateDeployment gates, executes, and records a new deployment. Replayed is
// true when the idempotency cache served the response without a provider call.
// The cache lookup runs before the risk gate: a replay of an accepted command
// returns the original entity even after the kill-switch has tripped, and
// leaves no new audit record.
func (s *Service) CreateDeployment(ctx context.Context, rctx model.RequestContext, key string,
	req model.CreateDeploymentRequest, strategy model.Strategy) (dep model.Deployment, replayed bool, err error) {

	done, err := s.begin(rctx, ScopeDeployments, key, req, &dep)
	if err != nil {
		return model.Deployment{}, false, err
	}
	if done {
		return dep, true, nil
	}

	if err := s.risk.CheckDeploymentCreate(rctx, req.Capital); err != nil {
		s.clear(rctx, ScopeDeployments, key)
		return model.Deployment{}, false, err
	}

	provider, err := s.engine.CreateDeployment(ctx, adapters.DeploymentSpec{
		StrategyRefID: strategy.ProviderRefID,
		Mode:          req.Mode,
		Capital:       req.Capital,
	})
	if err != nil {
		s.clear(rctx, ScopeDeployments, key)
		return model.Deployment{}, false, TranslateAdapterError(err)
	}

	status, _ := fsm.ApplyDeploymentProviderStatus(model.DeploymentQueued, provider.Status)
	dep = s.st.CreateDeployment(rctx, model.Deployment{
		StrategyID:    strategy.ID,
		Mode:          req.Mode,
		Status:        status,
		Capital:       req.Capital,
		ProviderRefID: provider.RefID,
	})
	s.complete(rctx, ScopeDeployments, key, http.StatusAccepted, dep)
	s.logger.Info("deployment created",
		"deploymentId", dep.ID, "strategyId", strategy.ID, "mode", req.Mode,
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	return dep, false, nil
}

func (s *Service) stop(ctx context.Context, rctx model.RequestContext, deploymentID string) (model.Deployment, error) {
	dep, err := s.st.GetDeployment(rctx, deploymentID)
	if err != nil {
		return model.Deployment{}, model.NotFound(model.ErrCodeDeploymentNotFound, deploymentID)
	}
	if fsm.DeploymentTerminal(dep.Status) {
		return dep, nil
	}
	if dep.ProviderRefID == "" {
		return s.st.UpdateDeployment(rctx, deploymentID, func(d *model.Deployment) {
			d.Status = model.DeploymentStopped
		})
	}

	provider, err := s.engine.StopDeployment(ctx, dep.ProviderRefID)
	if err != nil {
		return model.Deployment{}, TranslateAdapterError(err)
	}
	return s.st.UpdateDeployment(rctx, deploymentID, func(d *model.Deployment) {
		if next, changed := fsm.ApplyDeploymentProviderStatus(d.Status, provider.Status); changed {
			d.Status = next
		} else if next, err := fsm.DeploymentTransition(d.Status, model.DeploymentStopping); err == nil {
			d.Status = next
		}
	})
}

// StopDeployment stops a deployment on user request, behind the kill-switch
// guard.
func (s *Service) StopDeployment(ctx context.Context, rctx model.RequestContext, deploymentID string) (model.Deployment, error) {
	if err := s.risk.GuardCommand(rctx, "deployment", deploymentID); err != nil {
		return model.Deployment{}, err
	}
	return s.stop(ctx, rctx, deploymentID)
}

// StopDeploymentForRisk stops a deployment on behalf of the risk engine. The
// kill-switch has just tripped, so the guard is deliberately bypassed.
func (s *Service) StopDeploymentForRisk(ctx context.Context, rctx model.RequestContext, deploymentID, reason string) error {
	dep, err := s.stop(ctx, rctx, deploymentID)
	if err != nil {
		return err
	}
	s.logger.Warn("deployment stopped by risk engine",
		"deploymentId", dep.ID, "status", dep.Status, "reason", reason)
	return nil
}

// PlaceOrder gates, executes, and records a new order.
func (s *Service) PlaceOrder(ctx context.Context, rctx model.RequestContext, key string,
	req model.PlaceOrderRequest) (ord model.Order, replayed bool, err error) {

	done, err := s.begin(rctx, ScopeOrders, key, req, &ord)
	if err != nil {
		return model.Order{}, false, err
	}
	if done {
		return ord, true, nil
	}

	if err := s.risk.CheckOrderPlace(ctx, rctx, req); err != nil {
		s.clear(rctx, ScopeOrders, key)
		return model.Order{}, false, err
	}

	provider, err := s.engine.PlaceOrder(ctx, adapters.OrderSpec{
		Symbol:    req.Symbol,
		Side:      req.Side,
		OrderType: req.OrderType,
		Quantity:  req.Quantity,
		Price:     req.Price,
	})
	if err != nil {
		s.clear(rctx, ScopeOrders, key)
		return model.Order{}, false, TranslateAdapterError(err)
	}

	ord = s.st.CreateOrder(rctx, model.Order{
		Symbol:          req.Symbol,
		Side:            req.Side,
		OrderType:       req.OrderType,
		Quantity:        req.Quantity,
		Price:           req.Price,
		Status:          fsm.MapOrderProviderStatus(provider.Status),
		DeploymentID:    req.DeploymentID,
		ProviderOrderID: provider.OrderID,
	})
	s.complete(rctx, ScopeOrders, key, http.StatusCreated, ord)
	s.logger.Info("order placed",
		"orderId", ord.ID, "symbol", ord.Symbol, "side", ord.Side,
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	return ord, false, nil
}

// CancelOrder cancels a pending order, behind the kill-switch guard.
func (s *Service) CancelOrder(ctx context.Context, rctx model.RequestContext, orderID string) (model.Order, error) {
	if err := s.risk.GuardCommand(rctx, "order", orderID); err != nil {
		return model.Order{}, err
	}
	ord, err := s.st.GetOrder(rctx, orderID)
	if err != nil {
		return model.Order{}, model.NotFound(model.ErrCodeOrderNotFound, orderID)
	}
	if fsm.OrderTerminal(ord.Status) {
		return ord, nil
	}
	if ord.ProviderOrderID == "" {
		return s.st.UpdateOrder(rctx, orderID, func(o *model.Order) {
			o.Status = model.OrderCancelled
		})
	}

	provider, err := s.engine.CancelOrder(ctx, ord.ProviderOrderID)
	if err != nil {
		return model.Order{}, TranslateAdapterError(err)
	}
	return s.st.UpdateOrder(rctx, orderID, func(o *model.Order) {
		if next, changed := fsm.ApplyOrderProviderStatus(o.Status, provider.Status); changed {
			o.Status = next
		}
	})
}

// RefreshPortfolio pulls the provider account snapshot into the store.
func (s *Service) RefreshPortfolio(ctx context.Context, rctx model.RequestContext, mode model.DeploymentMode) (model.Portfolio, error) {
	snap, err := s.engine.GetPortfolio(ctx, mode)
	if err != nil {
		return model.Portfolio{}, TranslateAdapterError(err)
	}
	return s.st.UpsertPortfolio(rctx, model.Portfolio{
		Mode:       mode,
		Cash:       snap.Cash,
		TotalValue: snap.TotalValue,
		PnlTotal:   snap.PnlTotal,
		Positions:  snap.Positions,
	}), nil
}
