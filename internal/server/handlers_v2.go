package server

import (
	"net/http"

	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/reconcile"
)

// The v2 list variants are additive: the same records as v1 plus
// reconciliation metadata per item.

// DeploymentV2 is a deployment list item with reconciliation metadata.
type DeploymentV2 struct {
	model.Deployment
	DriftEventCount int `json:"driftEventCount"`
}

// OrderV2 is an order list item with reconciliation metadata.
type OrderV2 struct {
	model.Order
	DriftEventCount int `json:"driftEventCount"`
}

// HandleListDeploymentsV2 handles GET /v2/deployments.
func (h *Handlers) HandleListDeploymentsV2(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r)
	if h.recon != nil {
		if err := h.recon.ReconcileDeployments(r.Context(), rctx); err != nil {
			h.logger.Warn("reconcile on read failed", "resource", "deployments", "error", err)
		}
	}

	deployments := h.st.ListDeployments(rctx)
	out := make([]DeploymentV2, 0, len(deployments))
	for _, dep := range deployments {
		out = append(out, DeploymentV2{
			Deployment:      dep,
			DriftEventCount: h.st.CountDriftEvents(rctx, reconcile.ResourceDeployment, dep.ID),
		})
	}
	writeList(w, r, out, len(out))
}

// HandleListOrdersV2 handles GET /v2/orders.
func (h *Handlers) HandleListOrdersV2(w http.ResponseWriter, r *http.Request) {
	rctx := requestContext(r)
	if h.recon != nil {
		if err := h.recon.ReconcileOrders(r.Context(), rctx); err != nil {
			h.logger.Warn("reconcile on read failed", "resource", "orders", "error", err)
		}
	}

	orders := h.st.ListOrders(rctx)
	out := make([]OrderV2, 0, len(orders))
	for _, ord := range orders {
		out = append(out, OrderV2{
			Order:           ord,
			DriftEventCount: h.st.CountDriftEvents(rctx, reconcile.ResourceOrder, ord.ID),
		})
	}
	writeList(w, r, out, len(out))
}
