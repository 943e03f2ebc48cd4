package httpx

import (
	"errors"
	"github.com/ariefcatur/storefront-payments/internal/payment"
	"log/slog"
	"net/http"
)

func statusFor(k payment.Kind) int {
	switch k {
	case payment.KindValidation:
		return http.StatusBadRequest
	case payment.KindAuth:
		return http.StatusUnauthorized
	case payment.KindForbidden:
		return http.StatusForbidden
	case payment.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto its status code. Only messages from payment.Error reach the
// caller; anything else is logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	var pe *payment.Error
	if errors.As(err, &pe) {
		code, msg = statusFor(pe.Kind), pe.Msg
	}
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
