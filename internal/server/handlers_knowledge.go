package server

import (
	"net/http"
	"strings"

	"github.com/lonalabs/lona/internal/model"
)

// HandleKnowledgeQuery handles POST /v1/knowledge/query.
func (h *Handlers) HandleKnowledgeQuery(w http.ResponseWriter, r *http.Request) {
	var req model.KnowledgeQueryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "query is required")
		return
	}

	results := h.know.Query(requestContext(r), req)
	writeList(w, r, results, len(results))
}

// HandleListLessons handles GET /v1/knowledge/lessons.
func (h *Handlers) HandleListLessons(w http.ResponseWriter, r *http.Request) {
	lessons := h.st.ListLessons(requestContext(r))
	writeList(w, r, lessons, len(lessons))
}
