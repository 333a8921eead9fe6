package server

import (
	"net/http"

	"github.com/lonalabs/lona/internal/model"
)

// HandleRegisterDataset handles POST /v1/datasets.
func (h *Handlers) HandleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterDatasetRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	ds := h.datasets.Register(requestContext(r), req)
	writeJSON(w, r, http.StatusCreated, ds)
}

// HandlePublishDataset handles POST /v1/datasets/{id}/publish. Publishing is
// idempotent: an already-published dataset keeps its provider mapping.
func (h *Handlers) HandlePublishDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.datasets.EnsurePublished(r.Context(), requestContext(r), r.PathValue("id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ds)
}

// HandleListDatasets handles GET /v1/datasets.
func (h *Handlers) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := h.st.ListDatasets(requestContext(r))
	writeList(w, r, datasets, len(datasets))
}

// HandleGetDataset handles GET /v1/datasets/{id}.
func (h *Handlers) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ds, err := h.st.GetDataset(requestContext(r), id)
	if err != nil {
		writeErr(w, r, model.NotFound(model.ErrCodeDatasetNotFound, id))
		return
	}
	writeJSON(w, r, http.StatusOK, ds)
}
