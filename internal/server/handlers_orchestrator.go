package server

import (
	"net/http"
	"strings"

	"github.com/lonalabs/lona/internal/model"
)

// HandleEnqueueRun handles POST /v1/orchestrator/runs.
func (h *Handlers) HandleEnqueueRun(w http.ResponseWriter, r *http.Request) {
	var req model.EnqueueRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Intent) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "intent is required")
		return
	}

	run, err := h.runs.Enqueue(requestContext(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleGetRun handles GET /v1/orchestrator/runs/{id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.st.GetRun(requestContext(r), id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeRunNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleCancelRun handles POST /v1/orchestrator/runs/{id}/cancel. Cancelling
// a terminal run is a lifecycle violation, not a no-op.
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	run, err := h.runs.Cancel(requestContext(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListRunTraces handles GET /v1/orchestrator/runs/{id}/traces.
func (h *Handlers) HandleListRunTraces(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rctx := requestContext(r)
	if _, err := h.st.GetRun(rctx, id); err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeRunNotFound, id))
		return
	}
	traces := h.st.ListTraces(rctx, id)
	writeList(w, r, traces, len(traces))
}
