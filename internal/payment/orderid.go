package payment

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"strings"
	"time"
)

// NewOrderID builds the merchant buy order: ORD-<unix millis>-<6 hex>. Webpay caps buy_order at 26
// characters; this stays at 24.
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:6]))
}

type traceKey struct{}

// WithTraceID attaches the request id that events published for this request will carry.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
