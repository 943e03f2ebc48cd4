package orders

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrAlreadySettled = errors.New("order already settled")
	ErrDuplicateToken = errors.New("gateway token already recorded")
)

type Item struct {
	ProductID string `json:"productId" bson:"product_id"`
	Name      string `json:"name" bson:"name"`
	Price     int64  `json:"price" bson:"price"`
	Quantity  int    `json:"quantity" bson:"quantity"`
	Size      string `json:"size,omitempty" bson:"size,omitempty"`
	Color     string `json:"color,omitempty" bson:"color,omitempty"`
	Image     string `json:"image,omitempty" bson:"image,omitempty"`
}

type ShippingData struct {
	FullName string `json:"fullName" bson:"full_name"`
	Email    string `json:"email" bson:"email"`
	Phone    string `json:"phone" bson:"phone"`
	Address  string `json:"address" bson:"address"`
	Commune  string `json:"commune" bson:"commune"`
	Region   string `json:"region" bson:"region"`
	Notes    string `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Order struct {
	ID                string        `json:"orderId" bson:"_id"`
	UserID            string        `json:"userId" bson:"user_id"`
	SessionID         string        `json:"sessionId" bson:"session_id"`
	Amount            int64         `json:"amount" bson:"amount"`
	Items             []Item        `json:"items" bson:"items"`
	Shipping          ShippingData  `json:"shippingData" bson:"shipping"`
	GatewayToken      string        `json:"token" bson:"gateway_token"`
	Status            Status        `json:"status" bson:"status"`
	PaymentStatus     PaymentStatus `json:"paymentStatus" bson:"payment_status"`
	AuthorizationCode string        `json:"authorizationCode,omitempty" bson:"authorization_code"`
	CardNumber        string        `json:"cardNumberMasked,omitempty" bson:"card_number"`
	ResponseCode      *int          `json:"responseCode,omitempty" bson:"response_code,omitempty"`
	VCI               string        `json:"vci,omitempty" bson:"vci"`
	TransactionDate   string        `json:"transactionDate,omitempty" bson:"transaction_date"`
	PaymentTypeCode   string        `json:"paymentTypeCode,omitempty" bson:"payment_type_code"`
	Installments      int           `json:"installments" bson:"installments"`
	GatewayStatus     string        `json:"gatewayStatus,omitempty" bson:"gateway_status"`
	CreatedAt         time.Time     `json:"createdAt" bson:"created_at"`
	ConfirmedAt       *time.Time    `json:"confirmedAt,omitempty" bson:"confirmed_at,omitempty"`
}

// Settlement holds what a confirm writes onto a pending order.
type Settlement struct {
	Status            Status
	AuthorizationCode string
	CardNumber        string
	ResponseCode      int
	VCI               string
	TransactionDate   string
	PaymentTypeCode   string
	Installments      int
	GatewayStatus     string
	ConfirmedAt       time.Time
}

func (s Settlement) PaymentStatus() PaymentStatus { return PaymentStatusFor(s.Status) }

type CartItem struct {
	ProductID string    `json:"productId" bson:"product_id"`
	Name      string    `json:"name" bson:"name"`
	Price     int64     `json:"price" bson:"price"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	Size      string    `json:"size,omitempty" bson:"size"`
	Color     string    `json:"color,omitempty" bson:"color"`
	Image     string    `json:"image,omitempty" bson:"image,omitempty"`
	AddedAt   time.Time `json:"addedAt" bson:"added_at"`
}
