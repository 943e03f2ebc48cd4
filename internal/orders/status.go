package orders

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {},
	StatusRejected: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Settled reports whether the order has left pending. Settled orders never change again.
func (s Status) Settled() bool {
	return s == StatusApproved || s == StatusRejected
}

// PaymentStatusFor maps an order status to the payment status stored next to it.
func PaymentStatusFor(s Status) PaymentStatus {
	switch s {
	case StatusApproved:
		return PaymentPaid
	case StatusRejected:
		return PaymentFailed
	default:
		return PaymentPending
	}
}
