package server

import (
	"net/http"

	"github.com/lonalabs/lona/internal/model"
)

// HandleCreateDeployment handles POST /v1/deployments. Accepted commands
// return 202: the deployment exists but its provider lifecycle is still
// converging.
func (h *Handlers) HandleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDeploymentRequest
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

	key := r.Header.Get("Idempotency-Key")
	dep, _, err := h.exec.CreateDeployment(r.Context(), rctx, key, req, strat)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, dep)
}

// HandleListDeployments handles GET /v1/deployments. Listing triggers a
// throttled reconciliation pass first, so the response reflects provider
// state without hammering the provider on every read.
func (h *Handlers) HandleListDeployments(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r)
	if h.recon != nil {
		if err := h.recon.ReconcileDeployments(r.Context(), rctx); err != nil {
			h.logger.Warn("reconcile on read failed", "resource", "deployments", "error", err)
		}
	}
	deployments := h.st.ListDeployments(rctx)
	writeList(w, r, deployments, len(deployments))
}

// HandleGetDeployment handles GET /v1/deployments/{id}. Reads evaluate the
// drawdown kill-switch, so a breached deployment is stopped the next time
// anyone looks at it.
func (h *Handlers) HandleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rctx := requestContext(r)
	dep, err := h.st.GetDeployment(rctx, id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeDeploymentNotFound, id))
		return
	}

	h.riskEngine.EvaluateDeploymentDrawdown(r.Context(), rctx, dep)

	// The evaluation may have stopped the deployment; serve the latest state.
	if refreshed, err := h.st.GetDeployment(rctx, id); err == nil {
		dep = refreshed
	}
	writeJSON(w, r, http.StatusOK, dep)
}

// HandleStopDeployment handles POST /v1/deployments/{id}/stop.
func (h *Handlers) HandleStopDeployment(w http.ResponseWriter, r *http.Request) {
	dep, err := h.exec.StopDeployment(r.Context(), requestContext(r), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dep)
}

// HandlePlaceOrder handles POST /v1/orders.
func (h *Handlers) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req model.PlaceOrderRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	rctx := requestContext(r)
	if req.DeploymentID != "" {
		if _, err := h.st.GetDeployment(rctx, req.DeploymentID); err != nil {
			writeErr(w, r, model.NotFound(model.ErrCodeDeploymentNotFound, req.DeploymentID))
			return
		}
	}

	key := r.Header.Get("Idempotency-Key")
	ord, _, err := h.exec.PlaceOrder(r.Context(), rctx, key, req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ord)
}

// HandleListOrders handles GET /v1/orders, with the same throttled
// reconcile-on-read as deployments.
func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r)
	if h.recon != nil {
		if err := h.recon.ReconcileOrders(r.Context(), rctx); err != nil {
			h.logger.Warn("reconcile on read failed", "resource", "orders", "error", err)
		}
	}
	orders := h.st.ListOrders(rctx)
	writeList(w, r, orders, len(orders))
}

// HandleGetOrder handles GET /v1/orders/{id}.
func (h *Handlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ord, err := h.st.GetOrder(requestContext(r), id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeOrderNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, ord)
}

// HandleCancelOrder handles POST /v1/orders/{id}/cancel.
func (h *Handlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := h.exec.CancelOrder(r.Context(), requestContext(r), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ord)
}

// HandleGetPortfolio handles GET /v1/portfolio?mode=paper|live. The provider
// snapshot is pulled on every read.
func (h *Handlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	mode := model.DeploymentMode(r.URL.Query().Get("mode"))
	if mode != model.ModePaper && mode != model.ModeLive {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"mode must be \"paper\" or \"live\"")
		return
	}
	pf, err := h.exec.RefreshPortfolio(r.Context(), requestContext(r), mode)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pf)
}
