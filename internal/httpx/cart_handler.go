package httpx

import (
	"context"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/go-chi/chi/v5"
	"log/slog"
	"net/http"
	"time"
)

type CartStore interface {
	ListCart(ctx context.Context, userID string) ([]orders.CartItem, error)
	AddCartItem(ctx context.Context, userID string, it orders.CartItem) error
	RemoveCartItem(ctx context.Context, userID, productID string) error
}

// CartHandler edits the caller's cart. Approved payments empty it on the store side.
type CartHandler struct {
	Store CartStore
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/api/cart", h.list)
	r.Post("/api/cart/items", h.add)
	r.Delete("/api/cart/items/{productId}", h.remove)
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Store.ListCart(ctx, userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var it orders.CartItem
	if !decodeBody(w, r, addCartItemLoader, &it) {
		return
	}
	it.AddedAt = time.Time{}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	uid := userID(r)
	if err := h.Store.AddCartItem(ctx, uid, it); err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.Store.ListCart(ctx, uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.RemoveCartItem(ctx, userID(r), chi.URLParam(r, "productId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "cart store failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not update cart"})
}
