package orders

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentInitiated = "PaymentInitiated"
	EventPaymentApproved  = "PaymentApproved"
	EventPaymentRejected  = "PaymentRejected"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentInitiatedPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	Items   int    `json:"items"`
}

type PaymentSettledPayload struct {
	OrderID           string    `json:"order_id"`
	UserID            string    `json:"user_id"`
	Amount            int64     `json:"amount"`
	Status            Status    `json:"status"`
	ResponseCode      int       `json:"response_code"`
	AuthorizationCode string    `json:"authorization_code,omitempty"`
	PaymentTypeCode   string    `json:"payment_type_code,omitempty"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}
