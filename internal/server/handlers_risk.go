package server

import (
	"net/http"
)

// HandleGetRiskPolicy handles GET /v1/risk/policy. The policy is read-only
// over HTTP; it changes only via the policy file and the kill-switch reset.
func (h *Handlers) HandleGetRiskPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.riskEngine.Policy())
}

// HandleListRiskAudit handles GET /v1/risk/audit.
func (h *Handlers) HandleListRiskAudit(w http.ResponseWriter, r *http.Request) {
	records := h.st.ListRiskAudit(requestContext(r))
	writeList(w, r, records, len(records))
}

// HandleResetKillSwitch handles POST /v1/risk/kill-switch/reset. The reset is
// itself audited.
func (h *Handlers) HandleResetKillSwitch(w http.ResponseWriter, r *http.Request) {
	policy := h.riskEngine.ResetKillSwitch(requestContext(r))
	writeJSON(w, r, http.StatusOK, policy)
}

// HandleListDriftEvents handles GET /v1/drift-events.
func (h *Handlers) HandleListDriftEvents(w http.ResponseWriter, r *http.Request) {
	events := h.st.ListDriftEvents(requestContext(r))
	writeList(w, r, events, len(events))
}
