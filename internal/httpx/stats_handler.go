package httpx

import (
	"context"
	"github.com/ariefcatur/storefront-payments/internal/stats"
	"github.com/go-chi/chi/v5"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type SalesReader interface {
	Range(ctx context.Context, to time.Time, days int) ([]stats.DailySales, error)
}

// StatsHandler serves the admin dashboard figures.
type StatsHandler struct {
	Sales SalesReader
	Now   func() time.Time
}

func (h *StatsHandler) Register(r chi.Router) {
	r.With(RequireRole(RoleAdmin)).Get("/api/admin/stats/sales", h.sales)
}

func (h *StatsHandler) sales(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 366 {
			badRequest(w, "days must be between 1 and 366")
			return
		}
		days = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	out, err := h.Sales.Range(ctx, now, days)
	if err != nil {
		slog.ErrorContext(r.Context(), "read sales failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not read sales"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}
