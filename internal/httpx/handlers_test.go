package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/payment"
	"github.com/ariefcatur/storefront-payments/internal/stats"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

type fakePayments struct {
	mu         sync.Mutex
	lastUser   string
	lastInput  payment.CreateInput
	lastToken  string
	err        error
	orders     map[string]*orders.Order
	confirmRes *payment.ConfirmResult
}

func (f *fakePayments) Create(_ context.Context, userID string, in payment.CreateInput) (*payment.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser, f.lastInput = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return &payment.CreateResult{Success: true, Token: "tok-1", URL: "https://pay.example/init?token_ws=tok-1", OrderID: "ORD-1", Amount: in.Amount}, nil
}

func (f *fakePayments) Confirm(_ context.Context, userID, token string) (*payment.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser, f.lastToken = userID, token
	if f.err != nil {
		return nil, f.err
	}
	return f.confirmRes, nil
}

func (f *fakePayments) GetOrder(_ context.Context, userID, orderID string) (*orders.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, payment.ErrOrderNotFound
	}
	if o.UserID != userID {
		return nil, payment.ErrForbidden
	}
	return o, nil
}

func (f *fakePayments) ListOrders(_ context.Context, userID string) ([]orders.Order, error) {
	out := []orders.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type fakeCart struct {
	items map[string][]orders.CartItem
}

func (c *fakeCart) ListCart(_ context.Context, userID string) ([]orders.CartItem, error) {
	return append([]orders.CartItem{}, c.items[userID]...), nil
}

func (c *fakeCart) AddCartItem(_ context.Context, userID string, it orders.CartItem) error {
	c.items[userID] = append(c.items[userID], it)
	return nil
}

func (c *fakeCart) RemoveCartItem(_ context.Context, userID, productID string) error {
	kept := c.items[userID][:0]
	for _, it := range c.items[userID] {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	c.items[userID] = kept
	return nil
}

type fakeSales struct{ days int }

func (s *fakeSales) Range(_ context.Context, to time.Time, days int) ([]stats.DailySales, error) {
	s.days = days
	return []stats.DailySales{{Date: to.Format("2006-01-02"), Approved: 2, Revenue: 30000}}, nil
}

type testAPI struct {
	handler  http.Handler
	payments *fakePayments
	cart     *fakeCart
	sales    *fakeSales
}

func newTestAPI(t *testing.T, limiter *Limiter) *testAPI {
	t.Helper()
	api := &testAPI{
		payments: &fakePayments{orders: map[string]*orders.Order{
			"ORD-1": {ID: "ORD-1", UserID: "user-1", Amount: 15000, Status: orders.StatusApproved},
		}},
		cart:  &fakeCart{items: map[string][]orders.CartItem{}},
		sales: &fakeSales{},
	}
	r := NewRouter("integration", NewMetrics("payments-test"), 0)
	Mount(r, &Auth{Secret: testSecret},
		&PaymentHandler{Service: api.payments, Limiter: limiter},
		&OrdersHandler{Orders: api.payments},
		&CartHandler{Store: api.cart},
		&StatsHandler{Sales: api.sales},
	)
	api.handler = r
	return api
}

func token(t *testing.T, sub, role string, exp time.Duration) string {
	t.Helper()
	c := claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
	}}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func (a *testAPI) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

const createBody = `{"amount":15000,"items":[{"productId":"tee-01","name":"Polera","price":15000,"quantity":1,"size":"M"}],
"shippingData":{"fullName":"Ana Rojas","email":"ana@example.com","commune":"Providencia"}}`

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "integration", body["environment"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	api.do(t, http.MethodGet, "/health", "", "")

	rec := api.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_payments_test_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestTraceContext_PrefersSpanTraceID(t *testing.T) {
	var got string
	h := traceContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = payment.TraceID(r.Context())
	}))

	tid := trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     trace.SpanID{0, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req = req.WithContext(trace.ContextWithSpanContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"), sc))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got)

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-1", got)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t, nil)
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	forged, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", forged, http.StatusUnauthorized},
		{"expired", token(t, "user-1", "", -time.Minute), http.StatusUnauthorized},
		{"no subject", token(t, "", "", time.Hour), http.StatusUnauthorized},
		{"valid", token(t, "user-1", "", time.Hour), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/payment/create", tt.bearer, createBody)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePayment(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/payment/create", token(t, "user-1", "", time.Hour), createBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok-1", body["token"])
	assert.Contains(t, body["url"], "tok-1")
	assert.Equal(t, "ORD-1", body["orderId"])
	assert.EqualValues(t, 15000, body["amount"])

	assert.Equal(t, "user-1", api.payments.lastUser)
	assert.Equal(t, int64(15000), api.payments.lastInput.Amount)
	require.Len(t, api.payments.lastInput.Items, 1)
	assert.Equal(t, "M", api.payments.lastInput.Items[0].Size)
	assert.Equal(t, "Providencia", api.payments.lastInput.Shipping.Commune)
}

func TestCreatePayment_RejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t, nil)
	bearer := token(t, "user-1", "", time.Hour)

	for _, body := range []string{
		`not json`,
		`{"amount":"15000","items":[]}`,
		`{"items":[]}`,
		`{"amount":100,"items":[{"name":"no product id"}]}`,
	} {
		rec := api.do(t, http.MethodPost, "/api/payment/create", bearer, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, decode(t, rec)["error"])
	}
	assert.Empty(t, api.payments.lastUser)
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"invalid amount", payment.ErrInvalidAmount, http.StatusBadRequest, "invalid amount"},
		{"empty cart", payment.ErrEmptyCart, http.StatusBadRequest, "cart is empty"},
		{"missing token", payment.ErrMissingToken, http.StatusBadRequest, "token not provided"},
		{"not found", payment.ErrOrderNotFound, http.StatusNotFound, "order not found"},
		{"forbidden", payment.ErrForbidden, http.StatusForbidden, "order belongs to another user"},
		{"gateway", &payment.Error{Kind: payment.KindGateway, Msg: "Invalid value for parameter: amount", Err: errors.New("422")}, http.StatusInternalServerError, "Invalid value for parameter: amount"},
		{"store", &payment.Error{Kind: payment.KindStore, Msg: "could not save order", Err: errors.New("pq: connection refused")}, http.StatusInternalServerError, "could not save order"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, nil)
			api.payments.err = tt.err

			rec := api.do(t, http.MethodPost, "/api/payment/confirm", token(t, "user-1", "", time.Hour), `{"token":"tok-1"}`)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestConfirmPayment(t *testing.T) {
	api := newTestAPI(t, nil)
	api.payments.confirmRes = &payment.ConfirmResult{
		Success: false, OrderID: "ORD-1", Amount: 15000, ResponseCode: -1, Status: orders.StatusRejected,
	}

	rec := api.do(t, http.MethodPost, "/api/payment/confirm", token(t, "user-1", "", time.Hour), `{"token":"tok-9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.EqualValues(t, -1, body["responseCode"])
	assert.Equal(t, "rejected", body["status"])
	assert.Equal(t, "tok-9", api.payments.lastToken)
}

func TestPaymentRateLimit(t *testing.T) {
	api := newTestAPI(t, NewLimiter(0, 2))
	bearer := token(t, "user-1", "", time.Hour)

	for i := 0; i < 2; i++ {
		rec := api.do(t, http.MethodPost, "/api/payment/create", bearer, createBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := api.do(t, http.MethodPost, "/api/payment/create", bearer, createBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/payment/create", token(t, "user-2", "", time.Hour), createBody)
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per user")

	rec = api.do(t, http.MethodGet, "/api/orders", bearer, "")
	assert.Equal(t, http.StatusOK, rec.Code, "only payment routes are limited")
}

func TestOrders(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/orders/ORD-1", token(t, "user-1", "", time.Hour), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ORD-1", decode(t, rec)["orderId"])

	rec = api.do(t, http.MethodGet, "/api/orders/ORD-1", token(t, "user-2", "", time.Hour), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders/ORD-404", token(t, "user-1", "", time.Hour), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/orders", token(t, "user-1", "", time.Hour), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCart(t *testing.T) {
	api := newTestAPI(t, nil)
	bearer := token(t, "user-1", "", time.Hour)

	rec := api.do(t, http.MethodPost, "/api/cart/items", bearer, `{"productId":"tee-01","name":"Polera","price":10000,"quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = api.do(t, http.MethodPost, "/api/cart/items", bearer, `{"productId":"tee-01","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/cart/items/tee-01", bearer, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/cart", bearer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])
}

func TestSalesStats(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/admin/stats/sales", token(t, "user-1", "", time.Hour), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := token(t, "admin-1", RoleAdmin, time.Hour)
	rec = api.do(t, http.MethodGet, "/api/admin/stats/sales?days=30", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, api.sales.days)
	assert.Len(t, decode(t, rec)["days"], 1)

	rec = api.do(t, http.MethodGet, "/api/admin/stats/sales?days=abc", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
