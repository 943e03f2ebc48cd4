package httpx

import (
	"encoding/json"
	"github.com/ariefcatur/storefront-payments/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"net/http"
	"time"
)

// Registrar is implemented by every handler group mounted behind auth.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the public part of the API: health, metrics and the common middleware.
// m may be nil. A zero timeout means 30s.
func NewRouter(environment string, m *Metrics, timeout time.Duration) *chi.Mux {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(traceContext)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(middleware.Timeout(timeout))

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"environment": environment,
		})
	})
	return r
}

// Mount registers hs inside a group that requires a valid bearer token.
func Mount(r chi.Router, auth *Auth, hs ...Registrar) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		for _, h := range hs {
			h.Register(r)
		}
	})
}

// traceContext hands the trace id of the server span, or the request id without one, to the
// payment service so published events carry it.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			id = sc.TraceID().String()
		}
		if id != "" {
			r = r.WithContext(payment.WithTraceID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
