package webpay

import (
	"errors"
	"fmt"
	"net/url"
)

// Transaction statuses reported by the gateway.
const (
	StatusInitialized = "INITIALIZED"
	StatusAuthorized  = "AUTHORIZED"
	StatusFailed      = "FAILED"
	StatusReversed    = "REVERSED"
	StatusNullified   = "NULLIFIED"
)

// ResponseCodeApproved is the only response_code the gateway uses for an approved payment.
const ResponseCodeApproved = 0

var ErrUnavailable = errors.New("webpay: gateway unavailable")

type CreateRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type CreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// RedirectURL is the payment form address with the token attached as token_ws.
func (r CreateResponse) RedirectURL() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL + "?token_ws=" + url.QueryEscape(r.Token)
	}
	q := u.Query()
	q.Set("token_ws", r.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

type CardDetail struct {
	CardNumber string `json:"card_number"`
}

// TransactionResult is the body of both the commit and the status calls.
type TransactionResult struct {
	VCI                string     `json:"vci"`
	Amount             int64      `json:"amount"`
	Status             string     `json:"status"`
	BuyOrder           string     `json:"buy_order"`
	SessionID          string     `json:"session_id"`
	CardDetail         CardDetail `json:"card_detail"`
	AccountingDate     string     `json:"accounting_date"`
	TransactionDate    string     `json:"transaction_date"`
	AuthorizationCode  string     `json:"authorization_code"`
	PaymentTypeCode    string     `json:"payment_type_code"`
	ResponseCode       *int       `json:"response_code"`
	InstallmentsAmount int64      `json:"installments_amount"`
	InstallmentsNumber int        `json:"installments_number"`
}

func (t TransactionResult) Approved() bool {
	return t.ResponseCode != nil && *t.ResponseCode == ResponseCodeApproved
}

// Settled reports whether the gateway already holds a final outcome for the transaction.
func (t TransactionResult) Settled() bool {
	return t.ResponseCode != nil && t.Status != "" && t.Status != StatusInitialized
}

// Code returns response_code, or -1 when the gateway sent none.
func (t TransactionResult) Code() int {
	if t.ResponseCode == nil {
		return -1
	}
	return *t.ResponseCode
}

// APIError is a non-2xx answer from the gateway. Body keeps the raw response for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("webpay: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("webpay: unexpected status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrUnavailable }
