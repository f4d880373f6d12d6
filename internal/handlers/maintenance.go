package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tashaleeh/api/internal/platform/httpx"
	"github.com/tashaleeh/api/internal/services"
)

// MaintenanceHandlers exposes operator-triggered workflow maintenance. The
// scheduled sweeper covers the steady state; these endpoints exist for manual
// intervention and tooling.
type MaintenanceHandlers struct {
	orders services.OrderService
}

// NewMaintenanceHandlers constructs the internal maintenance endpoints.
func NewMaintenanceHandlers(orders services.OrderService) *MaintenanceHandlers {
	return &MaintenanceHandlers{orders: orders}
}

// Routes registers maintenance endpoints under the provided router.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:expire", h.expireOrders)
}

func (h *MaintenanceHandlers) expireOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	expired, err := h.orders.ExpireOverdue(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("expire_failed", "overdue sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}
