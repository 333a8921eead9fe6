package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// Check types recorded in the risk audit trail.
const (
	CheckDeploymentCreate = "pre_trade_deployment"
	CheckOrderPlace       = "pre_trade_order"
	CheckCommand          = "pre_trade_command"
	CheckDrawdown         = "drawdown_kill_switch"
	CheckKillSwitchReset  = "kill_switch_reset"
)

const outcomeAllow = "OK"

// DeploymentStopper stops a deployment through the execution command path.
// Implemented by the deployment service; the engine never talks to the
// provider directly.
type DeploymentStopper interface {
	StopDeploymentForRisk(ctx context.Context, rctx model.RequestContext, deploymentID, reason string) error
}

// MarketData resolves a market snapshot for a symbol. Satisfied by the data
// bridge adapter.
type MarketData interface {
	MarketContext(ctx context.Context, symbol string) (model.MarketContext, error)
}

// Engine evaluates the risk policy against side-effecting commands. One
// engine, one policy document, process-wide.
type Engine struct {
	mu      sync.Mutex
	policy  Policy
	store   *store.Store
	logger  *slog.Logger
	stopper DeploymentStopper
	market  MarketData
}

// NewEngine creates an engine for a validated policy.
func NewEngine(policy Policy, st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{policy: policy, store: st, logger: logger}
}

// SetStopper wires the deployment service in after construction. The
// deployment service depends on the engine for its pre-trade gate, so the
// reverse edge is injected late.
func (e *Engine) SetStopper(s DeploymentStopper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopper = s
}

// SetMarketData wires in a price source for orders with no explicit price and
// no held position. Optional; without one such orders are valued at zero.
func (e *Engine) SetMarketData(md MarketData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.market = md
}

func (e *Engine) marketData() MarketData {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.market
}

// Policy returns a copy of the current policy document.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// KillSwitchActive reports whether the kill-switch currently blocks commands.
func (e *Engine) KillSwitchActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.KillSwitch.Enabled && e.policy.KillSwitch.Triggered
}

func (e *Engine) audit(rctx model.RequestContext, checkType, resourceType, resourceID string,
	decision model.RiskDecision, outcomeCode, reason string, extra map[string]string) {
	p := e.policy
	ctxMap := map[string]string{"requestId": rctx.RequestID}
	for k, v := range extra {
		ctxMap[k] = v
	}
	e.store.AppendRiskAudit(model.RiskAuditRecord{
		Decision:      decision,
		CheckType:     checkType,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		PolicyVersion: p.Version,
		PolicyMode:    p.Mode,
		OutcomeCode:   outcomeCode,
		Reason:        reason,
		Context:       ctxMap,
		TenantID:      rctx.TenantID,
		UserID:        rctx.UserID,
	})
	if decision == model.RiskBlock {
		e.logger.Warn("risk check blocked",
			"check", checkType, "resource", resourceID, "code", outcomeCode,
			"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	}
}

func killSwitchError(reason string) *model.PlatformError {
	msg := "kill-switch is active; side-effecting commands are blocked"
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return model.NewPlatformError(model.ErrCodeRiskKillSwitch, http.StatusLocked, msg)
}

func limitBreach(reason string) *model.PlatformError {
	return model.NewPlatformError(model.ErrCodeRiskLimitBreach, http.StatusUnprocessableEntity, reason)
}

// GuardCommand is the kill-switch gate applied to side-effecting commands that
// carry no notional of their own (stop deployment, cancel order). Exactly one
// audit record per decision.
func (e *Engine) GuardCommand(rctx model.RequestContext, resourceType, resourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.policy.KillSwitch.Enabled && e.policy.KillSwitch.Triggered {
		e.audit(rctx, CheckCommand, resourceType, resourceID,
			model.RiskBlock, model.ErrCodeRiskKillSwitch, e.policy.KillSwitch.Reason, nil)
		return killSwitchError(e.policy.KillSwitch.Reason)
	}
	e.audit(rctx, CheckCommand, resourceType, resourceID, model.RiskAllow, outcomeAllow, "", nil)
	return nil
}

// CheckDeploymentCreate gates a new deployment's capital against the notional
// ceiling, counting capital already committed to active deployments.
func (e *Engine) CheckDeploymentCreate(rctx model.RequestContext, capital float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.policy.KillSwitch.Enabled && e.policy.KillSwitch.Triggered {
		e.audit(rctx, CheckDeploymentCreate, "deployment", "",
			model.RiskBlock, model.ErrCodeRiskKillSwitch, e.policy.KillSwitch.Reason, nil)
		return killSwitchError(e.policy.KillSwitch.Reason)
	}

	limits := e.policy.Limits
	active := e.store.ActiveCapital(rctx)
	extra := map[string]string{
		"capital":       fmt.Sprintf("%.2f", capital),
		"activeCapital": fmt.Sprintf("%.2f", active),
	}

	switch {
	case capital > limits.MaxNotionalUsd:
		reason := fmt.Sprintf("deployment capital %.2f exceeds maxNotionalUsd %.2f", capital, limits.MaxNotionalUsd)
		e.audit(rctx, CheckDeploymentCreate, "deployment", "", model.RiskBlock, model.ErrCodeRiskLimitBreach, reason, extra)
		return limitBreach(reason)
	case active+capital > limits.MaxNotionalUsd:
		reason := fmt.Sprintf("aggregate deployed capital %.2f would exceed maxNotionalUsd %.2f",
			active+capital, limits.MaxNotionalUsd)
		e.audit(rctx, CheckDeploymentCreate, "deployment", "", model.RiskBlock, model.ErrCodeRiskLimitBreach, reason, extra)
		return limitBreach(reason)
	}

	e.audit(rctx, CheckDeploymentCreate, "deployment", "", model.RiskAllow, outcomeAllow, "", extra)
	return nil
}

// referencePrice picks the price an order is valued at: explicit limit price,
// else the last-known position price for the symbol, else a cached or freshly
// fetched market snapshot, else zero. Runs before the policy lock is taken so
// the market lookup never blocks policy reads.
func (e *Engine) referencePrice(ctx context.Context, rctx model.RequestContext, req model.PlaceOrderRequest) float64 {
	if req.Price != nil {
		return *req.Price
	}
	for _, mode := range []model.DeploymentMode{model.ModePaper, model.ModeLive} {
		pf, err := e.store.GetPortfolio(rctx, mode)
		if err != nil {
			continue
		}
		for _, pos := range pf.Positions {
			if pos.Symbol == req.Symbol {
				return pos.CurrentPrice
			}
		}
	}
	if mc, ok := e.store.GetMarketContext(req.Symbol); ok {
		return mc.LastPrice
	}
	md := e.marketData()
	if md == nil {
		return 0
	}
	mc, err := md.MarketContext(ctx, req.Symbol)
	if err != nil {
		e.logger.Warn("market context lookup failed",
			"symbol", req.Symbol, "requestId", rctx.RequestID, "error", err)
		return 0
	}
	e.store.PutMarketContext(mc)
	return mc.LastPrice
}

func portfolioNotional(pf model.Portfolio) float64 {
	var total float64
	for _, pos := range pf.Positions {
		total += math.Abs(pos.Quantity) * pos.CurrentPrice
	}
	return total
}

// CheckOrderPlace gates an order against the per-position and aggregate
// notional ceilings and the daily loss limit.
func (e *Engine) CheckOrderPlace(ctx context.Context, rctx model.RequestContext, req model.PlaceOrderRequest) error {
	refPrice := e.referencePrice(ctx, rctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.policy.KillSwitch.Enabled && e.policy.KillSwitch.Triggered {
		e.audit(rctx, CheckOrderPlace, "order", "",
			model.RiskBlock, model.ErrCodeRiskKillSwitch, e.policy.KillSwitch.Reason, nil)
		return killSwitchError(e.policy.KillSwitch.Reason)
	}

	limits := e.policy.Limits
	notional := req.Quantity * refPrice

	var aggregate, pnl float64
	for _, mode := range []model.DeploymentMode{model.ModePaper, model.ModeLive} {
		if pf, err := e.store.GetPortfolio(rctx, mode); err == nil {
			aggregate += portfolioNotional(pf)
			pnl += pf.PnlTotal
		}
	}

	extra := map[string]string{
		"symbol":         req.Symbol,
		"orderNotional":  fmt.Sprintf("%.2f", notional),
		"referencePrice": fmt.Sprintf("%.2f", refPrice),
	}

	var reason string
	switch {
	case notional > limits.MaxPositionNotionalUsd:
		reason = fmt.Sprintf("order notional %.2f exceeds maxPositionNotionalUsd %.2f",
			notional, limits.MaxPositionNotionalUsd)
	case notional > limits.MaxNotionalUsd:
		reason = fmt.Sprintf("order notional %.2f exceeds maxNotionalUsd %.2f", notional, limits.MaxNotionalUsd)
	case aggregate+notional > limits.MaxNotionalUsd:
		reason = fmt.Sprintf("projected portfolio notional %.2f exceeds maxNotionalUsd %.2f",
			aggregate+notional, limits.MaxNotionalUsd)
	case pnl < 0 && -pnl >= limits.MaxDailyLossUsd:
		reason = fmt.Sprintf("portfolio loss %.2f meets maxDailyLossUsd %.2f", -pnl, limits.MaxDailyLossUsd)
	}
	if reason != "" {
		e.audit(rctx, CheckOrderPlace, "order", "", model.RiskBlock, model.ErrCodeRiskLimitBreach, reason, extra)
		return limitBreach(reason)
	}

	e.audit(rctx, CheckOrderPlace, "order", "", model.RiskAllow, outcomeAllow, "", extra)
	return nil
}

// EvaluateDeploymentDrawdown is called opportunistically on deployment reads.
// When the enforced policy's drawdown limit is met, the kill-switch trips and
// the offending deployment is stopped through the execution command path.
func (e *Engine) EvaluateDeploymentDrawdown(ctx context.Context, rctx model.RequestContext, dep model.Deployment) {
	e.mu.Lock()
	ks := &e.policy.KillSwitch
	limits := e.policy.Limits
	if e.policy.Mode != ModeEnforced || !ks.Enabled || ks.Triggered ||
		dep.LatestPnl == nil || dep.Capital <= 0 {
		e.mu.Unlock()
		return
	}
	drawdownPct := math.Abs(*dep.LatestPnl) / dep.Capital * 100
	if drawdownPct < limits.MaxDrawdownPct {
		e.mu.Unlock()
		return
	}

	ks.Triggered = true
	ks.TriggeredAt = time.Now().UTC().Format(time.RFC3339)
	ks.Reason = fmt.Sprintf("deployment %s drawdown %.2f%% breached limit %.2f%%",
		dep.ID, drawdownPct, limits.MaxDrawdownPct)
	reason := ks.Reason
	stopper := e.stopper
	e.audit(rctx, CheckDrawdown, "deployment", dep.ID,
		model.RiskBlock, model.ErrCodeRiskKillSwitch, reason,
		map[string]string{"drawdownPct": fmt.Sprintf("%.2f", drawdownPct)})
	e.mu.Unlock()

	e.logger.Error("kill-switch triggered", "deploymentId", dep.ID, "reason", reason)
	if stopper != nil {
		if err := stopper.StopDeploymentForRisk(ctx, rctx, dep.ID, reason); err != nil {
			e.logger.Error("kill-switch stop failed", "deploymentId", dep.ID, "error", err)
		}
	}
}

// ResetKillSwitch clears a triggered kill-switch. Manual operation; audited.
func (e *Engine) ResetKillSwitch(rctx model.RequestContext) Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy.KillSwitch.Triggered = false
	e.policy.KillSwitch.TriggeredAt = ""
	e.policy.KillSwitch.Reason = ""
	e.audit(rctx, CheckKillSwitchReset, "policy", "", model.RiskAllow, outcomeAllow, "manual reset", nil)
	return e.policy
}
