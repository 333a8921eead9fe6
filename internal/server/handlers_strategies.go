package server

import (
	"net/http"
	"strings"

	"github.com/lonalabs/lona/internal/execution"
	"github.com/lonalabs/lona/internal/model"
)

// HandleCreateStrategy handles POST /v1/strategies. The strategy is
// registered with the Trader provider before it is persisted, so every
// strategy carries a provider reference from birth.
func (h *Handlers) HandleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req model.CreateStrategyRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = "trader"
	}

	ref, err := h.trader.CreateStrategy(r.Context(), req.Name, req.Description)
	if err != nil {
		writeErr(w, r, execution.TranslateAdapterError(err))
		return
	}

	rctx := requestContext(r)
	strat := h.st.CreateStrategy(rctx, model.Strategy{
		Name:          req.Name,
		Description:   req.Description,
		Provider:      provider,
		ProviderRefID: ref.RefID,
	})
	h.logger.Info("strategy created",
		"strategyId", strat.ID, "name", strat.Name,
		"tenantId", rctx.TenantID, "requestId", rctx.RequestID)
	writeJSON(w, r, http.StatusCreated, strat)
}

// HandleListStrategies handles GET /v1/strategies.
func (h *Handlers) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies := h.st.ListStrategies(requestContext(r))
	writeList(w, r, strategies, len(strategies))
}

// HandleGetStrategy handles GET /v1/strategies/{id}.
func (h *Handlers) HandleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	strat, err := h.st.GetStrategy(requestContext(r), id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeStrategyNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, strat)
}

// HandleUpdateStrategy handles PATCH /v1/strategies/{id}. Only name and
// description are mutable; strategies are never deleted.
func (h *Handlers) HandleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateStrategyRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name must be non-empty")
		return
	}

	id := r.PathValue("id")
	strat, err := h.st.UpdateStrategy(requestContext(r), id, func(s *model.Strategy) {
		if req.Name != nil {
			s.Name = *req.Name
		}
		if req.Description != nil {
			s.Description = *req.Description
		}
	})
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeStrategyNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, strat)
}
