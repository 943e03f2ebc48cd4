package httpx

import (
	"context"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/payment"
	"github.com/go-chi/chi/v5"
	"net/http"
	"time"
)

type PaymentService interface {
	Create(ctx context.Context, userID string, in payment.CreateInput) (*payment.CreateResult, error)
	Confirm(ctx context.Context, userID, token string) (*payment.ConfirmResult, error)
}

// PaymentHandler serves the create/confirm endpoints. Limiter is optional.
type PaymentHandler struct {
	Service PaymentService
	Limiter *Limiter
	Timeout time.Duration
}

type createPaymentReq struct {
	Amount   int64               `json:"amount"`
	Items    []orders.Item       `json:"items"`
	Shipping orders.ShippingData `json:"shippingData"`
}

type confirmPaymentReq struct {
	Token string `json:"token"`
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Route("/api/payment", func(r chi.Router) {
		if h.Limiter != nil {
			r.Use(h.Limiter.Middleware)
		}
		r.Post("/create", h.create)
		r.Post("/confirm", h.confirm)
	})
}

func (h *PaymentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentReq
	if !decodeBody(w, r, createPaymentLoader, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	res, err := h.Service.Create(ctx, userID(r), payment.CreateInput{
		Amount:   req.Amount,
		Items:    req.Items,
		Shipping: req.Shipping,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentReq
	if !decodeBody(w, r, confirmPaymentLoader, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	res, err := h.Service.Confirm(ctx, userID(r), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// gateway timeout plus room for the store round trips
func (h *PaymentHandler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 25 * time.Second
}
