package redisx

import "time"

const (
	// Cached order document: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Daily sales hash: stats:sales:{yyyy-mm-dd} -> approved, rejected, revenue
	KeySalesDaily = "stats:sales:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
	TTLSalesDaily = 400 * 24 * time.Hour
)
