package controller

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/config"
	"github.com/zoobzio/clockz"
)

const controllerWebhookSecret = "whsec_controller"

type controllerStore struct {
	mu           sync.Mutex
	orders       map[string]entity.Order
	transactions map[string]entity.Transaction
	webhooks     map[string]entity.Webhook
	plugins      map[string]entity.Plugin
	connections  map[string]entity.PluginConnection
}

func newControllerStore() *controllerStore {
	return &controllerStore{
		orders:       map[string]entity.Order{},
		transactions: map[string]entity.Transaction{},
		webhooks:     map[string]entity.Webhook{},
		plugins:      map[string]entity.Plugin{},
		connections:  map[string]entity.PluginConnection{},
	}
}

func (s *controllerStore) RecordAttempt(_ context.Context, order *entity.Order, txn *entity.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	s.transactions[txn.ID] = *txn
	return nil
}

func (s *controllerStore) ReserveRefund(context.Context, *entity.Refund) error {
	return nil
}

func (s *controllerStore) FinalizeRefund(context.Context, *entity.Refund, *entity.Order) error {
	return nil
}

func (s *controllerStore) SettleTransaction(_ context.Context, txn *entity.Transaction, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	s.transactions[txn.ID] = *txn
	return nil
}

type controllerOrders struct{ s *controllerStore }

func (r controllerOrders) Create(_ context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return repository.ErrOrderAlreadyExists
	}
	r.s.orders[order.ID] = *order
	return nil
}

func (r controllerOrders) Update(_ context.Context, order *entity.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	r.s.orders[order.ID] = *order
	return nil
}

func (r controllerOrders) FindByID(_ context.Context, id string) (*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order, ok := r.s.orders[id]; ok {
		return &order, nil
	}
	return nil, nil
}

func (r controllerOrders) List(_ context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Order, 0)
	for _, order := range r.s.orders {
		if order.UserID == filter.UserID {
			item := order
			out = append(out, &item)
		}
	}
	return out, nil
}

func (r controllerOrders) Count(ctx context.Context, filter repository.OrderFilter) (int64, error) {
	items, _ := r.List(ctx, filter)
	return int64(len(items)), nil
}

type controllerTransactions struct{ s *controllerStore }

func (r controllerTransactions) FindByID(_ context.Context, id string) (*entity.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if txn, ok := r.s.transactions[id]; ok {
		return &txn, nil
	}
	return nil, nil
}

func (r controllerTransactions) FindByGatewayID(context.Context, string) (*entity.Transaction, error) {
	return nil, nil
}

func (r controllerTransactions) List(context.Context, repository.TransactionFilter) ([]*entity.Transaction, error) {
	return []*entity.Transaction{}, nil
}

func (r controllerTransactions) Count(context.Context, repository.TransactionFilter) (int64, error) {
	return 0, nil
}

type controllerRefunds struct{}

func (controllerRefunds) FindByID(context.Context, string) (*entity.Refund, error) {
	return nil, nil
}

func (controllerRefunds) FindByGatewayRefundID(context.Context, string) (*entity.Refund, error) {
	return nil, nil
}

func (controllerRefunds) SumReserved(context.Context, string) (int64, error)  { return 0, nil }
func (controllerRefunds) SumCompleted(context.Context, string) (int64, error) { return 0, nil }

type controllerWebhooks struct{ s *controllerStore }

func (r controllerWebhooks) Create(_ context.Context, webhook *entity.Webhook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.webhooks[webhook.ID]; ok {
		return repository.ErrWebhookAlreadyExists
	}
	r.s.webhooks[webhook.ID] = *webhook
	return nil
}

func (r controllerWebhooks) Update(_ context.Context, webhook *entity.Webhook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.webhooks[webhook.ID] = *webhook
	return nil
}

func (r controllerWebhooks) FindByID(_ context.Context, id string) (*entity.Webhook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if webhook, ok := r.s.webhooks[id]; ok {
		return &webhook, nil
	}
	return nil, nil
}

func (r controllerWebhooks) ListDueRetry(context.Context, time.Time, int32) ([]*entity.Webhook, error) {
	return []*entity.Webhook{}, nil
}

func (r controllerWebhooks) ListFailed(context.Context, int32, int32) ([]*entity.Webhook, error) {
	return []*entity.Webhook{}, nil
}

type controllerStatusChanges struct{}

func (controllerStatusChanges) Create(context.Context, *entity.StatusChange) error {
	return nil
}

type controllerPlugins struct{ s *controllerStore }

func (r controllerPlugins) Create(_ context.Context, p *entity.Plugin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plugins[p.ID]; ok {
		return repository.ErrPluginAlreadyExists
	}
	r.s.plugins[p.ID] = *p
	return nil
}

func (r controllerPlugins) Update(_ context.Context, p *entity.Plugin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plugins[p.ID]; !ok {
		return repository.ErrPluginNotFound
	}
	r.s.plugins[p.ID] = *p
	return nil
}

func (r controllerPlugins) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.plugins, id)
	return nil
}

func (r controllerPlugins) FindByID(_ context.Context, id string) (*entity.Plugin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.plugins[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r controllerPlugins) List(context.Context) ([]*entity.Plugin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Plugin, 0, len(r.s.plugins))
	for _, p := range r.s.plugins {
		item := p
		out = append(out, &item)
	}
	return out, nil
}

type controllerConnections struct{ s *controllerStore }

func (r controllerConnections) Create(_ context.Context, conn *entity.PluginConnection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.connections[conn.ID] = *conn
	return nil
}

func (r controllerConnections) Update(_ context.Context, conn *entity.PluginConnection) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.connections[conn.ID]; !ok {
		return repository.ErrConnectionNotFound
	}
	r.s.connections[conn.ID] = *conn
	return nil
}

func (r controllerConnections) FindByID(_ context.Context, id string) (*entity.PluginConnection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if conn, ok := r.s.connections[id]; ok {
		return &conn, nil
	}
	return nil, nil
}

func (r controllerConnections) ListActiveByUser(_ context.Context, userID string) ([]*entity.PluginConnection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.PluginConnection, 0)
	for _, conn := range r.s.connections {
		if conn.UserID == userID && conn.Active() {
			item := conn
			out = append(out, &item)
		}
	}
	return out, nil
}

type controllerExchanges struct{}

func (controllerExchanges) Create(context.Context, *entity.PluginExchange) error {
	return nil
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newPaymentControllerForTest(store *controllerStore, clock clockz.Clock) *PaymentController {
	paymentService := service.NewPaymentService(
		service.PaymentRepositories{
			Orders:        controllerOrders{store},
			Transactions:  controllerTransactions{store},
			Refunds:       controllerRefunds{},
			Webhooks:      controllerWebhooks{store},
			StatusChanges: controllerStatusChanges{},
			Store:         store,
		},
		gateway.NewRegistry(gateway.NewSandboxAdapter([]string{"credit_card"})),
		nil,
		config.PaymentsConfig{
			DefaultCurrency: "USD",
			Currencies:      []string{"USD", "EUR"},
			MinAmount:       0.5,
			MaxAmount:       10000,
			OrderTimeout:    30 * time.Minute,
			RefundWindow:    180 * 24 * time.Hour,
			GatewayTimeout:  time.Second,
			JobBatchSize:    50,
			Methods: []config.MethodConfig{
				{ID: "credit_card", Name: "Credit Card", Enabled: true, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: []string{"USD", "EUR"}},
				{ID: "crypto", Name: "Crypto", Enabled: false},
			},
		},
		config.WebhooksConfig{
			Secret:             controllerWebhookSecret,
			VerifySignature:    true,
			SignatureTolerance: 5 * time.Minute,
			RetryAttempts:      5,
			RetryDelay:         2 * time.Second,
		},
		clock,
		quietLogger(),
	)
	return NewPaymentController(paymentService, clock)
}

const controllerCatalog = `
plugins:
  - id: echo
    name: Echo
    version: 1.0.0
    category: utilities
    executor: builtin
    functions:
      - name: echo
        parameters:
          message:
            type: string
            required: true
  - id: failing
    name: Failing
    version: 1.0.0
    category: utilities
    executor: builtin
    functions:
      - name: explode
`

func newPluginControllerForTest(store *controllerStore, clock clockz.Clock) (*PluginController, error) {
	catalog, err := plugin.ParseCatalog([]byte(controllerCatalog))
	if err != nil {
		return nil, err
	}
	builtin := plugin.NewBuiltin()
	plugin.RegisterDefaults(builtin)
	builtin.Register("failing", "explode", func(context.Context, map[string]interface{}, map[string]interface{}) (interface{}, error) {
		return nil, plugin.ErrRemote
	})

	pluginService := service.NewPluginService(
		service.PluginRepositories{
			Plugins:       controllerPlugins{store},
			Connections:   controllerConnections{store},
			Exchanges:     controllerExchanges{},
			StatusChanges: controllerStatusChanges{},
		},
		catalog,
		plugin.Executors{entity.ExecutorBuiltin: builtin},
		nil,
		config.MCPConfig{
			ProtocolVersion: "1.0.0",
			ProtocolTimeout: 5 * time.Second,
			MaxConcurrent:   4,
			DefaultTimeout:  time.Second,
			Defaults:        config.PluginDefaults{Enabled: true, Priority: 5, Timeout: time.Second},
		},
		clock,
		quietLogger(),
	)
	return NewPluginController(pluginService, clock), nil
}
