package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lonalabs/lona/internal/adapters"
	"github.com/lonalabs/lona/internal/canonical"
	"github.com/lonalabs/lona/internal/execution"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/store"
)

// ScopeBacktests is the idempotency scope for backtest creation.
const ScopeBacktests = "research_commands_backtests"

func backtestStatusFromProvider(provider string) model.BacktestStatus {
	switch strings.ToLower(provider) {
	case "queued":
		return model.BacktestQueued
	case "running", "in_progress":
		return model.BacktestRunning
	case "completed", "done":
		return model.BacktestCompleted
	case "failed", "error":
		return model.BacktestFailed
	case "cancelled", "canceled":
		return model.BacktestCancelled
	default:
		return model.BacktestRunning
	}
}

func backtestTerminal(s model.BacktestStatus) bool {
	switch s {
	case model.BacktestCompleted, model.BacktestFailed, model.BacktestCancelled:
		return true
	}
	return false
}

// HandleCreateBacktest handles POST /v1/backtests. Dataset references are
// resolved to provider data IDs before the provider call; the per-tenant
// research budget is charged per provider call and rejects with 429 once
// exhausted. An Idempotency-Key makes the create replayable.
func (h *Handlers) HandleCreateBacktest(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBacktestRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	rctx := requestContext(r)
	strat, err := h.st.GetStrategy(rctx, req.StrategyID)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeStrategyNotFound, req.StrategyID))
		return
	}

	providerDataIDs, err := h.datasets.ResolveRefs(rctx, req.DatasetIDs)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		fingerprint, err := canonical.Fingerprint(req)
		if err != nil {
			writeErr(w, r, model.Internal(err))
			return
		}
		lookup, err := h.st.BeginIdempotency(ScopeBacktests, rctx.TenantID, key, fingerprint)
		switch {
		case errors.Is(err, store.ErrIdempotencyPayloadMismatch):
			writeError(w, r, http.StatusConflict, model.ErrCodeIdempotencyConflict,
				"idempotency key was already used with a different payload")
			return
		case errors.Is(err, store.ErrIdempotencyInProgress):
			writeError(w, r, http.StatusConflict, model.ErrCodeIdempotencyInProgress,
				"a request with this idempotency key is still in progress")
			return
		case err != nil:
			writeErr(w, r, model.Internal(err))
			return
		}
		if lookup.Completed {
			var bt model.Backtest
			if err := json.Unmarshal(lookup.ResponseData, &bt); err != nil {
				writeErr(w, r, model.Internal(err))
				return
			}
			writeJSON(w, r, lookup.StatusCode, bt)
			return
		}
	}

	cost := h.trader.ResearchCostUSD()
	if h.researchBudgetUSD > 0 && h.st.ResearchSpend(rctx.TenantID)+cost > h.researchBudgetUSD {
		if key != "" {
			h.st.ClearInProgressIdempotency(ScopeBacktests, rctx.TenantID, key)
		}
		writeErrorDetails(w, r, http.StatusTooManyRequests, model.ErrCodeResearchBudget,
			"research provider budget exceeded for this tenant", map[string]any{
				"spentUsd":  h.st.ResearchSpend(rctx.TenantID),
				"budgetUsd": h.researchBudgetUSD,
			})
		return
	}
	spent := h.st.AddResearchSpend(rctx.TenantID, cost)

	report, err := h.trader.CreateBacktest(r.Context(), adapters.BacktestSpec{
		StrategyRefID:   strat.ProviderRefID,
		ProviderDataIDs: providerDataIDs,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		InitialCash:     req.InitialCash,
	})
	if err != nil {
		if key != "" {
			h.st.ClearInProgressIdempotency(ScopeBacktests, rctx.TenantID, key)
		}
		writeErr(w, r, execution.TranslateAdapterError(err))
		return
	}

	bt := h.st.CreateBacktest(rctx, model.Backtest{
		StrategyID:       req.StrategyID,
		DatasetIDs:       req.DatasetIDs,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		InitialCash:      req.InitialCash,
		Status:           backtestStatusFromProvider(report.Status),
		Metrics:          report.Metrics,
		ProviderReportID: report.ReportID,
		Error:            report.Error,
	})
	if backtestTerminal(bt.Status) {
		h.know.IngestBacktestOutcome(rctx, bt)
	}
	if key != "" {
		if err := h.st.CompleteIdempotency(ScopeBacktests, rctx.TenantID, key, http.StatusCreated, bt); err != nil {
			h.logger.Error("idempotency complete failed", "scope", ScopeBacktests, "error", err)
		}
	}
	h.logger.Info("backtest created",
		"backtestId", bt.ID, "strategyId", bt.StrategyID, "status", bt.Status,
		"researchSpendUsd", fmt.Sprintf("%.2f", spent),
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	writeJSON(w, r, http.StatusCreated, bt)
}

// HandleListBacktests handles GET /v1/backtests.
func (h *Handlers) HandleListBacktests(w http.ResponseWriter, r *http.Request) {
	backtests := h.st.ListBacktests(requestContext(r))
	writeList(w, r, backtests, len(backtests))
}

// HandleGetBacktest handles GET /v1/backtests/{id}. Non-terminal backtests
// are refreshed from the provider on read; a provider failure serves the
// stored record rather than failing the read.
func (h *Handlers) HandleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rctx := requestContext(r)
	bt, err := h.st.GetBacktest(rctx, id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeBacktestNotFound, id))
		return
	}

	if !backtestTerminal(bt.Status) && bt.ProviderReportID != "" {
		report, err := h.trader.GetBacktest(r.Context(), bt.ProviderReportID)
		if err != nil {
			h.logger.Warn("backtest refresh failed, serving stored state",
				"backtestId", bt.ID, "error", err)
			writeJSON(w, r, http.StatusOK, bt)
			return
		}
		next := backtestStatusFromProvider(report.Status)
		if next != bt.Status || report.Error != bt.Error {
			bt, err = h.st.UpdateBacktest(rctx, id, func(b *model.Backtest) {
				b.Status = next
				b.Error = report.Error
				if len(report.Metrics) > 0 {
					b.Metrics = report.Metrics
				}
			})
			if err != nil {
				writeErr(w, r, model.Internal(err))
				return
			}
			h.know.IngestBacktestOutcome(rctx, bt)
		}
	}
	writeJSON(w, r, http.StatusOK, bt)
}
