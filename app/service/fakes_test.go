package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/config"
	"github.com/zoobzio/clockz"
)

// memStore keeps copies of every row, the way the database would, so a
// caller mutating its entity never changes stored state behind the service.
type memStore struct {
	mu           sync.Mutex
	orders       map[string]*entity.Order
	transactions map[string]*entity.Transaction
	refunds      map[string]*entity.Refund
	webhooks     map[string]*entity.Webhook
	changes      []*entity.StatusChange

	recordAttemptErr error
}

func newMemStore() *memStore {
	return &memStore{
		orders:       map[string]*entity.Order{},
		transactions: map[string]*entity.Transaction{},
		refunds:      map[string]*entity.Refund{},
		webhooks:     map[string]*entity.Webhook{},
	}
}

func (s *memStore) repositories() PaymentRepositories {
	return PaymentRepositories{
		Orders:        memOrders{s},
		Transactions:  memTransactions{s},
		Refunds:       memRefunds{s},
		Webhooks:      memWebhooks{s},
		StatusChanges: memStatusChanges{s},
		Store:         s,
	}
}

func (s *memStore) order(id string) *entity.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.orders[id]; ok {
		copyItem := *item
		return &copyItem
	}
	return nil
}

func (s *memStore) transaction(id string) *entity.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.transactions[id]; ok {
		copyItem := *item
		return &copyItem
	}
	return nil
}

func (s *memStore) webhook(id string) *entity.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.webhooks[id]; ok {
		copyItem := *item
		return &copyItem
	}
	return nil
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.changes))
	for _, c := range s.changes {
		out = append(out, c.EventType)
	}
	return out
}

func (s *memStore) putTransaction(txn *entity.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyItem := *txn
	s.transactions[txn.ID] = &copyItem
}

func (s *memStore) RecordAttempt(_ context.Context, order *entity.Order, txn *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordAttemptErr != nil {
		return s.recordAttemptErr
	}
	o := *order
	t := *txn
	s.orders[order.ID] = &o
	s.transactions[txn.ID] = &t
	return nil
}

func (s *memStore) ReserveRefund(_ context.Context, refund *entity.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[refund.TransactionID]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	var reserved int64
	for _, r := range s.refunds {
		if r.TransactionID == refund.TransactionID && r.Reserved() {
			reserved += r.AmountMinor
		}
	}
	if reserved+refund.AmountMinor > txn.AmountMinor {
		return repository.ErrRefundExceedsBalance
	}
	r := *refund
	s.refunds[refund.ID] = &r
	return nil
}

func (s *memStore) FinalizeRefund(_ context.Context, refund *entity.Refund, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refunds[refund.ID]; !ok {
		return repository.ErrRefundNotFound
	}
	r := *refund
	s.refunds[refund.ID] = &r
	if order != nil {
		o := *order
		s.orders[order.ID] = &o
	}
	return nil
}

func (s *memStore) SettleTransaction(_ context.Context, txn *entity.Transaction, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *txn
	s.transactions[txn.ID] = &t
	if order != nil {
		o := *order
		s.orders[order.ID] = &o
	}
	return nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return repository.ErrOrderAlreadyExists
	}
	copyItem := *order
	r.s.orders[order.ID] = &copyItem
	return nil
}

func (r memOrders) Update(_ context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	copyItem := *order
	r.s.orders[order.ID] = &copyItem
	return nil
}

func (r memOrders) FindByID(_ context.Context, id string) (*entity.Order, error) {
	return r.s.order(id), nil
}

func (r memOrders) byUser(userID string) []*entity.Order {
	items := make([]*entity.Order, 0)
	for _, item := range r.s.orders {
		if item.UserID == userID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items
}

func (r memOrders) List(_ context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.byUser(filter.UserID)
	start := int(filter.Offset)
	if start > len(items) {
		start = len(items)
	}
	end := start + int(filter.Limit)
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (r memOrders) Count(_ context.Context, filter repository.OrderFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.byUser(filter.UserID))), nil
}

type memTransactions struct{ s *memStore }

func (r memTransactions) FindByID(_ context.Context, id string) (*entity.Transaction, error) {
	return r.s.transaction(id), nil
}

func (r memTransactions) FindByGatewayID(_ context.Context, gatewayTransactionID string) (*entity.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.transactions {
		if item.Gateway.TransactionID == gatewayTransactionID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r memTransactions) filtered(filter repository.TransactionFilter) []*entity.Transaction {
	items := make([]*entity.Transaction, 0)
	for _, item := range r.s.transactions {
		if item.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && string(item.Status) != filter.Status {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items
}

func (r memTransactions) List(_ context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := r.filtered(filter)
	start := int(filter.Offset)
	if start > len(items) {
		start = len(items)
	}
	end := start + int(filter.Limit)
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (r memTransactions) Count(_ context.Context, filter repository.TransactionFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.filtered(filter))), nil
}

type memRefunds struct{ s *memStore }

func (r memRefunds) FindByID(_ context.Context, id string) (*entity.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if item, ok := r.s.refunds[id]; ok {
		copyItem := *item
		return &copyItem, nil
	}
	return nil, nil
}

func (r memRefunds) FindByGatewayRefundID(_ context.Context, gatewayRefundID string) (*entity.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.refunds {
		if item.GatewayRefundID != nil && *item.GatewayRefundID == gatewayRefundID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r memRefunds) sum(transactionID string, include func(*entity.Refund) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, item := range r.s.refunds {
		if item.TransactionID == transactionID && include(item) {
			total += item.AmountMinor
		}
	}
	return total
}

func (r memRefunds) SumReserved(_ context.Context, transactionID string) (int64, error) {
	return r.sum(transactionID, (*entity.Refund).Reserved), nil
}

func (r memRefunds) SumCompleted(_ context.Context, transactionID string) (int64, error) {
	return r.sum(transactionID, func(item *entity.Refund) bool {
		return item.Status == entity.RefundStatusCompleted
	}), nil
}

type memWebhooks struct{ s *memStore }

func (r memWebhooks) Create(_ context.Context, webhook *entity.Webhook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhooks[webhook.ID]; ok {
		return repository.ErrWebhookAlreadyExists
	}
	copyItem := *webhook
	r.s.webhooks[webhook.ID] = &copyItem
	return nil
}

func (r memWebhooks) Update(_ context.Context, webhook *entity.Webhook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhooks[webhook.ID]; !ok {
		return repository.ErrWebhookNotFound
	}
	copyItem := *webhook
	r.s.webhooks[webhook.ID] = &copyItem
	return nil
}

func (r memWebhooks) FindByID(_ context.Context, id string) (*entity.Webhook, error) {
	return r.s.webhook(id), nil
}

func (r memWebhooks) ListDueRetry(_ context.Context, now time.Time, limit int32) ([]*entity.Webhook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]*entity.Webhook, 0)
	for _, item := range r.s.webhooks {
		if item.Status != entity.WebhookStatusPending || item.NextRetryAt == nil || item.NextRetryAt.After(now) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
		if int32(len(items)) == limit {
			break
		}
	}
	return items, nil
}

func (r memWebhooks) ListFailed(_ context.Context, limit, offset int32) ([]*entity.Webhook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]*entity.Webhook, 0)
	for _, item := range r.s.webhooks {
		if item.Status == entity.WebhookStatusFailed {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if int(offset) >= len(items) {
		return []*entity.Webhook{}, nil
	}
	items = items[offset:]
	if int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

type memStatusChanges struct{ s *memStore }

func (r memStatusChanges) Create(_ context.Context, change *entity.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copyItem := *change
	r.s.changes = append(r.s.changes, &copyItem)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) has(eventType string) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// scriptedGateway answers with fixed outcomes and supports refunds.
type scriptedGateway struct {
	name         string
	methods      []string
	authorize    gateway.AuthorizationStatus
	refundStatus gateway.RefundStatus
	refundErr    error
	refundCalls  int
	mu           sync.Mutex
}

func (g *scriptedGateway) Name() string      { return g.name }
func (g *scriptedGateway) Methods() []string { return g.methods }

func (g *scriptedGateway) Authorize(_ context.Context, input *gateway.AuthorizeInput) (*gateway.AuthorizeResult, error) {
	return &gateway.AuthorizeResult{
		Status:               g.authorize,
		GatewayTransactionID: "gw_" + input.OrderID,
		ResponseCode:         string(g.authorize),
	}, nil
}

func (g *scriptedGateway) Refund(_ context.Context, input *gateway.RefundInput) (*gateway.RefundResult, error) {
	g.mu.Lock()
	g.refundCalls++
	g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gateway.RefundResult{Status: g.refundStatus, GatewayRefundID: "gwre_" + input.RefundID}, nil
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPaymentsConfig() config.PaymentsConfig {
	cards := []string{"USD", "EUR", "GBP", "CAD"}
	return config.PaymentsConfig{
		DefaultCurrency: "USD",
		Currencies:      []string{"USD", "EUR", "GBP", "JPY", "CAD"},
		MinAmount:       0.5,
		MaxAmount:       999999.99,
		OrderTimeout:    30 * time.Minute,
		RefundWindow:    180 * 24 * time.Hour,
		GatewayTimeout:  2 * time.Second,
		JobBatchSize:    50,
		Methods: []config.MethodConfig{
			{ID: "credit_card", Name: "Credit Card", Enabled: true, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: cards},
			{ID: "paypal", Name: "PayPal", Enabled: true, FeeBasisPoints: 349, FeeFixedMinor: 49, Currencies: []string{"USD", "EUR"}},
			{ID: "bank_transfer", Name: "Bank Transfer", Enabled: true, FeeBasisPoints: 80, Currencies: []string{"USD", "JPY"}},
			{ID: "google_pay", Name: "Google Pay", Enabled: false, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: cards},
		},
	}
}

func testWebhooksConfig() config.WebhooksConfig {
	return config.WebhooksConfig{
		Secret:             "whsec_test",
		VerifySignature:    true,
		SignatureTolerance: 5 * time.Minute,
		RetryAttempts:      5,
		RetryDelay:         2 * time.Second,
	}
}

type paymentFixture struct {
	service   *PaymentService
	store     *memStore
	publisher *recordingPublisher
	clock     *clockz.FakeClock
}

func newPaymentFixture(adapters ...gateway.Adapter) *paymentFixture {
	if len(adapters) == 0 {
		adapters = []gateway.Adapter{gateway.NewSandboxAdapter([]string{"credit_card", "paypal", "bank_transfer", "google_pay"})}
	}
	store := newMemStore()
	publisher := &recordingPublisher{}
	clock := clockz.NewFakeClock()
	svc := NewPaymentService(
		store.repositories(),
		gateway.NewRegistry(adapters...),
		publisher,
		testPaymentsConfig(),
		testWebhooksConfig(),
		clock,
		quietLogger(),
	)
	return &paymentFixture{service: svc, store: store, publisher: publisher, clock: clock}
}
