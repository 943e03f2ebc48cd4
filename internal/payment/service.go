package payment

import (
	"context"
	"errors"
	kafkax "github.com/ariefcatur/storefront-payments/internal/kafka"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/redisx"
	"github.com/ariefcatur/storefront-payments/internal/webpay"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/singleflight"
	"log/slog"
	"strings"
	"time"
)

const sharedReadTimeout = 5 * time.Second

type Gateway interface {
	CreateTransaction(ctx context.Context, req webpay.CreateRequest) (webpay.CreateResponse, error)
	CommitTransaction(ctx context.Context, token string) (webpay.TransactionResult, error)
	TransactionStatus(ctx context.Context, token string) (webpay.TransactionResult, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *orders.Order) error
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetOrderByToken(ctx context.Context, token string) (*orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	SettleOrder(ctx context.Context, token string, s orders.Settlement) (*orders.Order, error)
}

type OrderCache interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	Set(ctx context.Context, o *orders.Order) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service coordinates the create/confirm lifecycle of a Webpay transaction.
// Cache, Initiated and Settled are optional.
type Service struct {
	Gateway     Gateway
	Orders      OrderStore
	Cache       OrderCache
	Initiated   Publisher
	Settled     Publisher
	ReturnURL   string
	ServiceName string
	Log         *slog.Logger
	Now         func() time.Time

	SettleAttempts int
	SettleBackoff  time.Duration

	reads singleflight.Group
}

type CreateInput struct {
	Amount   int64
	Items    []orders.Item
	Shipping orders.ShippingData
}

type CreateResult struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	URL     string `json:"url"`
	OrderID string `json:"orderId"`
	Amount  int64  `json:"amount"`
}

type ConfirmResult struct {
	Success           bool          `json:"success"`
	OrderID           string        `json:"orderId"`
	Amount            int64         `json:"amount"`
	AuthorizationCode string        `json:"authorizationCode"`
	ResponseCode      int           `json:"responseCode"`
	Status            orders.Status `json:"status"`
	GatewayStatus     string        `json:"gatewayStatus,omitempty"`
	CardNumberMasked  string        `json:"cardNumberMasked,omitempty"`
	Replayed          bool          `json:"replayed"`
}

// Create opens a gateway transaction and records the pending order. Nothing is stored when the
// gateway call fails.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*CreateResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	now := s.now()
	orderID := NewOrderID(now)
	log := s.log().With("order_id", orderID, "user_id", userID)

	tx, err := s.Gateway.CreateTransaction(ctx, webpay.CreateRequest{
		BuyOrder:  orderID,
		SessionID: userID,
		Amount:    in.Amount,
		ReturnURL: s.ReturnURL,
	})
	if err != nil {
		log.Error("create transaction failed", "amount", in.Amount, "err", err)
		return nil, gatewayError("could not create transaction", err)
	}

	o := &orders.Order{
		ID:            orderID,
		UserID:        userID,
		SessionID:     userID,
		Amount:        in.Amount,
		Items:         in.Items,
		Shipping:      in.Shipping,
		GatewayToken:  tx.Token,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		CreatedAt:     now,
	}
	if err := s.Orders.CreateOrder(ctx, o); err != nil {
		log.Error("save order failed", "err", err)
		return nil, storeError("could not save order", err)
	}

	s.publish(ctx, s.Initiated, orders.EventPaymentInitiated, o.ID, orders.PaymentInitiatedPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Amount,
		Items:   len(o.Items),
	})
	log.Info("transaction created", "amount", o.Amount)

	return &CreateResult{
		Success: true,
		Token:   tx.Token,
		URL:     tx.RedirectURL(),
		OrderID: o.ID,
		Amount:  o.Amount,
	}, nil
}

// Confirm settles the order behind token. A token whose order is already settled gets the recorded
// outcome back and causes no further side effects.
func (s *Service) Confirm(ctx context.Context, userID, token string) (*ConfirmResult, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	o, err := s.Orders.GetOrderByToken(ctx, token)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, storeError("could not load order", err)
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	log := s.log().With("order_id", o.ID, "user_id", userID)
	if o.Status.Settled() {
		log.Info("confirm replayed", "status", o.Status)
		return resultFromOrder(o, true), nil
	}

	res, err := s.Gateway.CommitTransaction(ctx, token)
	if err != nil {
		log.Warn("commit failed", "err", err)
		if cur, lerr := s.Orders.GetOrderByToken(ctx, token); lerr == nil && cur.Status.Settled() {
			return resultFromOrder(cur, true), nil
		}
		st, serr := s.Gateway.TransactionStatus(ctx, token)
		if serr != nil || !st.Settled() {
			return nil, gatewayError("could not confirm transaction", err)
		}
		log.Info("commit outcome recovered from status", "gateway_status", st.Status)
		res = st
	}
	if res.Amount != 0 && res.Amount != o.Amount {
		log.Warn("gateway amount differs from order", "order_amount", o.Amount, "gateway_amount", res.Amount)
	}

	settled, err := s.settle(ctx, token, settlementFrom(res, s.now()))
	switch {
	case errors.Is(err, orders.ErrAlreadySettled):
		cur, lerr := s.Orders.GetOrderByToken(ctx, token)
		if lerr != nil {
			return nil, storeError("could not load order", lerr)
		}
		log.Info("lost settle race", "status", cur.Status)
		return resultFromOrder(cur, true), nil
	case errors.Is(err, orders.ErrNotFound):
		return nil, ErrOrderNotFound
	case err != nil:
		log.Error("settle failed", "err", err)
		return nil, storeError("could not record payment result", err)
	}

	eventType := orders.EventPaymentRejected
	if settled.Status == orders.StatusApproved {
		eventType = orders.EventPaymentApproved
	}
	s.publish(ctx, s.Settled, eventType, settled.ID, orders.PaymentSettledPayload{
		OrderID:           settled.ID,
		UserID:            settled.UserID,
		Amount:            settled.Amount,
		Status:            settled.Status,
		ResponseCode:      res.Code(),
		AuthorizationCode: settled.AuthorizationCode,
		PaymentTypeCode:   settled.PaymentTypeCode,
		ConfirmedAt:       derefTime(settled.ConfirmedAt),
	})
	log.Info("transaction settled", "status", settled.Status, "response_code", res.Code())

	return resultFromOrder(settled, false), nil
}

// GetOrder returns the order when it belongs to userID.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*orders.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if orderID == "" {
		return nil, validationError("order id is required")
	}
	o, err := s.loadOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, storeError("could not load order", err)
	}
	if o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	out, err := s.Orders.ListOrders(ctx, userID)
	if err != nil {
		return nil, storeError("could not list orders", err)
	}
	return out, nil
}

// loadOrder reads through the cache. Only settled orders are cached: they never change again.
func (s *Service) loadOrder(ctx context.Context, id string) (*orders.Order, error) {
	if s.Cache != nil {
		o, err := s.Cache.Get(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, redisx.ErrCacheMiss) {
			s.log().Warn("order cache read failed", "order_id", id, "err", err)
		}
	}

	// The shared read outlives any single caller; each caller still stops waiting on its own ctx.
	ch := s.reads.DoChan(id, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		o, err := s.Orders.GetOrder(rctx, id)
		if err != nil {
			return nil, err
		}
		if s.Cache != nil && o.Status.Settled() {
			if err := s.Cache.Set(rctx, o); err != nil {
				s.log().Warn("order cache write failed", "order_id", id, "err", err)
			}
		}
		return o, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*orders.Order), nil
	}
}

// settle retries transient store failures. The store update is conditional on the order being
// pending, so repeating it never applies a settlement twice.
func (s *Service) settle(ctx context.Context, token string, st orders.Settlement) (*orders.Order, error) {
	attempts := s.SettleAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := s.SettleBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	// After a failed attempt the write may still have landed, so a later conflict can be our own.
	uncertain := false
	for i := 1; ; i++ {
		o, err := s.Orders.SettleOrder(ctx, token, st)
		if uncertain && errors.Is(err, orders.ErrAlreadySettled) {
			if cur, lerr := s.Orders.GetOrderByToken(ctx, token); lerr == nil && appliedBy(cur, st) {
				s.log().Info("earlier settle attempt had landed", "order_id", cur.ID, "attempt", i)
				return cur, nil
			}
		}
		if err == nil || errors.Is(err, orders.ErrAlreadySettled) || errors.Is(err, orders.ErrNotFound) || i >= attempts {
			return o, err
		}
		uncertain = true
		s.log().Warn("settle attempt failed", "attempt", i, "err", err)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(time.Duration(i) * backoff):
		}
	}
}

// appliedBy reports whether o carries the settlement st.
func appliedBy(o *orders.Order, st orders.Settlement) bool {
	return o.ConfirmedAt != nil && o.ConfirmedAt.Equal(st.ConfirmedAt) &&
		o.Status == st.Status && o.AuthorizationCode == st.AuthorizationCode
}

func (s *Service) publish(ctx context.Context, p Publisher, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       TraceID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, ev.EventVersion)...)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func validateCreate(in CreateInput) error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if len(in.Items) == 0 {
		return ErrEmptyCart
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return validationError("item %d: missing product id", i)
		}
		if it.Quantity < 1 {
			return validationError("item %d: quantity must be at least 1", i)
		}
		if it.Price < 0 {
			return validationError("item %d: negative price", i)
		}
	}
	return nil
}

func settlementFrom(res webpay.TransactionResult, now time.Time) orders.Settlement {
	status := orders.StatusRejected
	if res.Approved() {
		status = orders.StatusApproved
	}
	return orders.Settlement{
		Status:            status,
		AuthorizationCode: res.AuthorizationCode,
		CardNumber:        res.CardDetail.CardNumber,
		ResponseCode:      res.Code(),
		VCI:               res.VCI,
		TransactionDate:   res.TransactionDate,
		PaymentTypeCode:   res.PaymentTypeCode,
		Installments:      res.InstallmentsNumber,
		GatewayStatus:     res.Status,
		ConfirmedAt:       now.Truncate(time.Millisecond),
	}
}

func resultFromOrder(o *orders.Order, replayed bool) *ConfirmResult {
	code := -1
	if o.ResponseCode != nil {
		code = *o.ResponseCode
	}
	return &ConfirmResult{
		Success:           o.Status == orders.StatusApproved,
		OrderID:           o.ID,
		Amount:            o.Amount,
		AuthorizationCode: o.AuthorizationCode,
		ResponseCode:      code,
		Status:            o.Status,
		GatewayStatus:     o.GatewayStatus,
		CardNumberMasked:  o.CardNumber,
		Replayed:          replayed,
	}
}

func gatewayError(msg string, err error) *Error {
	var apiErr *webpay.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &Error{Kind: KindGateway, Msg: msg, Err: err}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
