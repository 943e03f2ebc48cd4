package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/storefront-payments/internal/orders"
	"github.com/ariefcatur/storefront-payments/internal/redisx"
	"github.com/ariefcatur/storefront-payments/internal/webpay"
	kafkago "github.com/segmentio/kafka-go"
	"sync"
)

// fakeGateway stands in for the Webpay API.
type fakeGateway struct {
	mu sync.Mutex

	createErr    error
	commitResult webpay.TransactionResult
	commitErr    error
	statusResult webpay.TransactionResult
	statusErr    error

	creates    int
	commits    int
	statuses   int
	lastCreate webpay.CreateRequest
}

func (g *fakeGateway) CreateTransaction(_ context.Context, req webpay.CreateRequest) (webpay.CreateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	g.lastCreate = req
	if g.createErr != nil {
		return webpay.CreateResponse{}, g.createErr
	}
	return webpay.CreateResponse{
		Token: fmt.Sprintf("tok-%d", g.creates),
		URL:   "https://webpay3gint.transbank.cl/webpayserver/initTransaction",
	}, nil
}

func (g *fakeGateway) CommitTransaction(_ context.Context, _ string) (webpay.TransactionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits++
	return g.commitResult, g.commitErr
}

func (g *fakeGateway) TransactionStatus(_ context.Context, _ string) (webpay.TransactionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses++
	return g.statusResult, g.statusErr
}

func (g *fakeGateway) commitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commits
}

func approvedResult(amount int64) webpay.TransactionResult {
	code := 0
	return webpay.TransactionResult{
		VCI:                "TSY",
		Amount:             amount,
		Status:             webpay.StatusAuthorized,
		CardDetail:         webpay.CardDetail{CardNumber: "6623"},
		TransactionDate:    "2026-03-01T12:00:00.000Z",
		AuthorizationCode:  "1213",
		PaymentTypeCode:    "VD",
		ResponseCode:       &code,
		InstallmentsNumber: 0,
	}
}

func rejectedResult(amount int64) webpay.TransactionResult {
	code := -1
	return webpay.TransactionResult{
		Amount:       amount,
		Status:       webpay.StatusFailed,
		CardDetail:   webpay.CardDetail{CardNumber: "6623"},
		ResponseCode: &code,
	}
}

// memStore mimics the conditional settle of the real stores.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
	carts  map[string][]orders.CartItem

	createErr   error
	settleErrs  []error
	settleCalls int
	cartClears  int
	// lostAcks makes that many successful settles report an error anyway.
	lostAcks int
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]*orders.Order{}, carts: map[string][]orders.CartItem{}}
}

func (m *memStore) CreateOrder(_ context.Context, o *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.orders {
		if existing.GatewayToken == o.GatewayToken {
			return orders.ErrDuplicateToken
		}
	}
	c := *o
	m.orders[o.ID] = &c
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (m *memStore) GetOrderByToken(_ context.Context, token string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.byToken(token)
	if o == nil {
		return nil, orders.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (m *memStore) ListOrders(_ context.Context, userID string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []orders.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) SettleOrder(_ context.Context, token string, s orders.Settlement) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleCalls++
	if len(m.settleErrs) > 0 {
		err := m.settleErrs[0]
		m.settleErrs = m.settleErrs[1:]
		return nil, err
	}
	o := m.byToken(token)
	if o == nil {
		return nil, orders.ErrNotFound
	}
	if o.Status != orders.StatusPending {
		return nil, orders.ErrAlreadySettled
	}
	code := s.ResponseCode
	confirmed := s.ConfirmedAt
	o.Status = s.Status
	o.PaymentStatus = s.PaymentStatus()
	o.AuthorizationCode = s.AuthorizationCode
	o.CardNumber = s.CardNumber
	o.ResponseCode = &code
	o.VCI = s.VCI
	o.TransactionDate = s.TransactionDate
	o.PaymentTypeCode = s.PaymentTypeCode
	o.Installments = s.Installments
	o.GatewayStatus = s.GatewayStatus
	o.ConfirmedAt = &confirmed
	if s.Status == orders.StatusApproved {
		delete(m.carts, o.UserID)
		m.cartClears++
	}
	if m.lostAcks > 0 {
		m.lostAcks--
		return nil, errors.New("unexpected EOF")
	}
	c := *o
	return &c, nil
}

func (m *memStore) byToken(token string) *orders.Order {
	for _, o := range m.orders {
		if o.GatewayToken == token {
			return o
		}
	}
	return nil
}

func (m *memStore) cartCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]*orders.Order
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string]*orders.Order{}} }

func (c *fakeCache) Get(_ context.Context, id string) (*orders.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.items[id]
	if !ok {
		return nil, redisx.ErrCacheMiss
	}
	return o, nil
}

func (c *fakeCache) Set(_ context.Context, o *orders.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[o.ID] = o
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []orders.Envelope
}

func (p *recordingPublisher) Publish(_, value []byte, _ ...kafkago.Header) {
	var ev orders.Envelope
	if err := json.Unmarshal(value, &ev); err != nil {
		panic(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType)
	}
	return out
}

// slowStore holds GetOrder until release is closed or ctx ends.
type slowStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return s.memStore.GetOrder(ctx, id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
