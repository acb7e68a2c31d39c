package cmd

import (
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/factory"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/plugin"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/app/service"
	"github.com/vibast-solutions/ms-go-integrations/config"
	"github.com/zoobzio/clockz"
)

type services struct {
	cfg      *config.Config
	payments *service.PaymentService
	plugins  *service.PluginService
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustOpenDB(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

// mustCreatePublisher always logs events and also publishes them to NATS
// when a URL is configured.
func mustCreatePublisher(cfg *config.Config) (events.Publisher, func()) {
	logger := factory.NewModuleLogger("events")
	publishers := events.Multi{events.NewLogPublisher(logger)}
	if cfg.NATS.URL == "" {
		return publishers, func() {}
	}

	conn, err := events.Connect(events.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          cfg.NATS.Name,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, logger)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to NATS")
	}
	publishers = append(publishers, events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix, logger))

	return publishers, func() {
		if err := conn.Drain(); err != nil {
			logrus.WithError(err).Warn("Failed to drain NATS connection")
		}
	}
}

func newGatewayRegistry(cfg *config.Config) *gateway.Registry {
	adapters := make([]gateway.Adapter, 0, 2)
	if cfg.Stripe.SecretKey != "" {
		adapters = append(adapters, gateway.NewStripeAdapter(gateway.StripeConfig{
			SecretKey:   cfg.Stripe.SecretKey,
			APIBaseURL:  cfg.Stripe.APIBaseURL,
			HTTPTimeout: cfg.Stripe.HTTPTimeout,
		}))
	}
	if cfg.Sandbox.Enabled {
		methods := make([]string, 0, len(cfg.Payments.Methods))
		for _, m := range cfg.Payments.Methods {
			methods = append(methods, m.ID)
		}
		adapters = append(adapters, gateway.NewSandboxAdapter(methods))
	}
	return gateway.NewRegistry(adapters...)
}

func mustCreatePluginRuntime(cfg *config.Config) (*plugin.Catalog, plugin.Executors) {
	catalog, err := plugin.LoadCatalog(cfg.MCP.CatalogPath)
	if err != nil {
		logrus.WithError(err).WithField("path", cfg.MCP.CatalogPath).Fatal("Failed to load plugin catalog")
	}

	builtin := plugin.NewBuiltin()
	plugin.RegisterDefaults(builtin)
	client := &http.Client{Timeout: cfg.MCP.ProtocolTimeout + 5*time.Second}

	return catalog, plugin.Executors{
		entity.ExecutorBuiltin: builtin,
		entity.ExecutorHTTP:    plugin.NewHTTPExecutor(client, cfg.MCP.ProtocolVersion),
	}
}

func mustCreateServices() (*services, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDB(cfg)
	publisher, closePublisher := mustCreatePublisher(cfg)
	catalog, executors := mustCreatePluginRuntime(cfg)
	statusChanges := repository.NewStatusChangeRepository(db)

	paymentService := service.NewPaymentService(
		service.PaymentRepositories{
			Orders:        repository.NewOrderRepository(db),
			Transactions:  repository.NewTransactionRepository(db),
			Refunds:       repository.NewRefundRepository(db),
			Webhooks:      repository.NewWebhookRepository(db),
			StatusChanges: statusChanges,
			Store:         repository.NewPaymentStore(db),
		},
		newGatewayRegistry(cfg),
		publisher,
		cfg.Payments,
		cfg.Webhooks,
		clockz.RealClock,
		factory.NewModuleLogger("payment-service"),
	)
	pluginService := service.NewPluginService(
		service.PluginRepositories{
			Plugins:       repository.NewPluginRepository(db),
			Connections:   repository.NewConnectionRepository(db),
			Exchanges:     repository.NewExchangeRepository(db),
			StatusChanges: statusChanges,
		},
		catalog,
		executors,
		publisher,
		cfg.MCP,
		clockz.RealClock,
		factory.NewModuleLogger("plugin-service"),
	)

	cleanup := func() {
		closePublisher()
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &services{cfg: cfg, payments: paymentService, plugins: pluginService}, cleanup
}
