package httpx

import (
	"context"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/go-chi/chi/v5"
	"net/http"
	"time"
)

type OrderReader interface {
	GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderReader
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/orders", h.listOrders)
	r.Get("/api/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		badRequest(w, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, userID(r), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
