package server

import (
	"math"
	"net/http"

	"github.com/lonalabs/lona/internal/model"
)

func validBaselineDecision(d model.ValidationDecision) bool {
	switch d {
	case model.DecisionPass, model.DecisionConditionalPass, model.DecisionFail, model.DecisionUnknown:
		return true
	}
	return false
}

// HandleCreateValidationRun handles POST /v1/validation/runs.
func (h *Handlers) HandleCreateValidationRun(w http.ResponseWriter, r *http.Request) {
	var req model.CreateValidationRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.DriftPct < 0 || math.IsNaN(req.DriftPct) || math.IsInf(req.DriftPct, 0) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"driftPct must be finite and non-negative")
		return
	}

	run := h.st.CreateValidationRun(requestContext(r), model.ValidationRun{
		Actor:       req.Actor,
		ArtifactRef: req.ArtifactRef,
		Decision:    req.Decision,
		DriftPct:    req.DriftPct,
	})
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleCreateBaseline handles POST /v1/validation/baselines.
func (h *Handlers) HandleCreateBaseline(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBaselineRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ArtifactRef == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "artifactRef is required")
		return
	}
	if !validBaselineDecision(req.Decision) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"decision is not valid")
		return
	}
	if req.DriftPct < 0 || math.IsNaN(req.DriftPct) || math.IsInf(req.DriftPct, 0) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"driftPct must be finite and non-negative")
		return
	}

	baseline := h.st.CreateBaseline(requestContext(r), model.ValidationBaseline{
		ArtifactRef: req.ArtifactRef,
		Decision:    req.Decision,
		DriftPct:    req.DriftPct,
	})
	writeJSON(w, r, http.StatusCreated, baseline)
}

// HandleReplay handles POST /v1/validation/replay.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	var req model.ReplayRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	result, err := h.gate.Evaluate(requestContext(r), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
