package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	NATS              NATSConfig
	Stripe            StripeConfig
	Sandbox           SandboxConfig
	Payments          PaymentsConfig
	Webhooks          WebhooksConfig
	MCP               MCPConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
	Env         string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

type StripeConfig struct {
	SecretKey   string
	APIBaseURL  string
	HTTPTimeout time.Duration
}

type SandboxConfig struct {
	Enabled bool
}

// MethodConfig describes one payment method. Fees are a percentage in basis
// points plus a fixed amount in minor units of the order currency.
type MethodConfig struct {
	ID             string
	Name           string
	Description    string
	ProcessingTime string
	Enabled        bool
	FeeBasisPoints int64
	FeeFixedMinor  int64
	Currencies     []string
}

type PaymentsConfig struct {
	DefaultCurrency string
	Currencies      []string
	MinAmount       float64
	MaxAmount       float64
	OrderTimeout    time.Duration
	RefundWindow    time.Duration
	GatewayTimeout  time.Duration
	Methods         []MethodConfig
	JobBatchSize    int32
}

type WebhooksConfig struct {
	Secret             string
	VerifySignature    bool
	SignatureTolerance time.Duration
	RetryAttempts      int32
	RetryDelay         time.Duration
}

type PluginDefaults struct {
	Enabled    bool
	AutoStart  bool
	Priority   int
	Timeout    time.Duration
	RetryCount int
}

type MCPConfig struct {
	ProtocolVersion  string
	ProtocolTimeout  time.Duration
	CatalogPath      string
	MaxConcurrent    int64
	DefaultTimeout   time.Duration
	RequireSignature bool
	Defaults         PluginDefaults
	Featured         []string
}

type JobsConfig struct {
	WebhookRetryInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	cfg := &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "integrations-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
			Env:         strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			Name:          getEnv("NATS_CLIENT_NAME", "integrations-service"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "integrations"),
			MaxReconnects: getIntEnv("NATS_MAX_RECONNECTS", 10),
			ReconnectWait: getSecondsEnv("NATS_RECONNECT_WAIT_SECONDS", 2*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
			APIBaseURL:  getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
			HTTPTimeout: getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Sandbox: SandboxConfig{
			Enabled: getBoolEnv("SANDBOX_GATEWAY_ENABLED", false),
		},
		Payments: PaymentsConfig{
			DefaultCurrency: strings.ToUpper(getEnv("PAYMENTS_DEFAULT_CURRENCY", "USD")),
			Currencies:      getListEnv("PAYMENTS_CURRENCIES", []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CNY"}),
			MinAmount:       getFloatEnv("PAYMENTS_MIN_AMOUNT", 0.50),
			MaxAmount:       getFloatEnv("PAYMENTS_MAX_AMOUNT", 999999.99),
			OrderTimeout:    getMinutesEnv("PAYMENTS_ORDER_TIMEOUT_MINUTES", 30*time.Minute),
			RefundWindow:    time.Duration(getIntEnv("PAYMENTS_REFUND_WINDOW_DAYS", 180)) * 24 * time.Hour,
			GatewayTimeout:  getSecondsEnv("PAYMENTS_GATEWAY_TIMEOUT_SECONDS", 30*time.Second),
			Methods:         defaultMethods(getListEnv("PAYMENTS_DISABLED_METHODS", nil)),
			JobBatchSize:    int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Webhooks: WebhooksConfig{
			Secret:             getEnv("WEBHOOK_SECRET", ""),
			VerifySignature:    getBoolEnv("WEBHOOK_VERIFY_SIGNATURE", true),
			SignatureTolerance: getSecondsEnv("WEBHOOK_SIGNATURE_TOLERANCE_SECONDS", 300*time.Second),
			RetryAttempts:      int32(getIntEnv("WEBHOOK_RETRY_ATTEMPTS", 5)),
			RetryDelay:         getSecondsEnv("WEBHOOK_RETRY_DELAY_SECONDS", 2*time.Second),
		},
		MCP: MCPConfig{
			ProtocolVersion:  getEnv("MCP_PROTOCOL_VERSION", "1.0.0"),
			ProtocolTimeout:  getSecondsEnv("MCP_PROTOCOL_TIMEOUT_SECONDS", 30*time.Second),
			CatalogPath:      getEnv("MCP_CATALOG_PATH", "plugins.yaml"),
			MaxConcurrent:    int64(getIntEnv("MCP_MAX_CONCURRENT", 10)),
			DefaultTimeout:   getSecondsEnv("MCP_DEFAULT_TIMEOUT_SECONDS", 15*time.Second),
			RequireSignature: getBoolEnv("MCP_REQUIRE_SIGNATURE", true),
			Defaults: PluginDefaults{
				Enabled:    true,
				AutoStart:  getBoolEnv("MCP_PLUGIN_AUTO_START", false),
				Priority:   5,
				Timeout:    getSecondsEnv("MCP_PLUGIN_TIMEOUT_SECONDS", 15*time.Second),
				RetryCount: 2,
			},
			Featured: getListEnv("MCP_FEATURED_PLUGINS", []string{"ai-assistant", "data-analyzer", "image-processor", "text-translator", "weather-service"}),
		},
		Jobs: JobsConfig{
			WebhookRetryInterval: getSecondsEnv("WEBHOOK_RETRY_INTERVAL_SECONDS", 10*time.Second),
		},
	}

	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvironment applies the per-environment overrides once at load time.
// Explicit environment variables still win over them.
func (c *Config) applyEnvironment() {
	switch c.App.Env {
	case EnvDevelopment:
		if os.Getenv("PAYMENTS_MIN_AMOUNT") == "" {
			c.Payments.MinAmount = 0.01
		}
		if os.Getenv("MCP_REQUIRE_SIGNATURE") == "" {
			c.MCP.RequireSignature = false
		}
		if os.Getenv("SANDBOX_GATEWAY_ENABLED") == "" {
			c.Sandbox.Enabled = true
		}
	case EnvProduction:
		if os.Getenv("MCP_MAX_CONCURRENT") == "" {
			c.MCP.MaxConcurrent = 50
		}
	case EnvTest:
		if os.Getenv("SANDBOX_GATEWAY_ENABLED") == "" {
			c.Sandbox.Enabled = true
		}
		if os.Getenv("PAYMENTS_ORDER_TIMEOUT_MINUTES") == "" {
			c.Payments.OrderTimeout = time.Minute
		}
		if os.Getenv("MCP_PROTOCOL_TIMEOUT_SECONDS") == "" {
			c.MCP.ProtocolTimeout = 5 * time.Second
		}
	}
}

func (c *Config) Validate() error {
	switch c.App.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("APP_ENV must be one of %s, %s, %s", EnvDevelopment, EnvProduction, EnvTest)
	}
	if c.MCP.ProtocolTimeout < time.Second {
		return errors.New("MCP protocol timeout must be at least 1 second")
	}
	if c.MCP.MaxConcurrent < 1 {
		return errors.New("MCP max concurrent executions must be at least 1")
	}
	if c.Payments.MinAmount < 0 {
		return errors.New("payment minimum amount cannot be negative")
	}
	if c.Payments.MaxAmount <= c.Payments.MinAmount {
		return errors.New("payment maximum amount must be greater than minimum amount")
	}
	if len(c.Payments.Currencies) == 0 {
		return errors.New("at least one payment currency is required")
	}
	if c.Payments.OrderTimeout <= 0 {
		return errors.New("order timeout must be positive")
	}
	if c.Webhooks.RetryAttempts < 1 {
		return errors.New("webhook retry attempts must be at least 1")
	}
	if c.Webhooks.VerifySignature && strings.TrimSpace(c.Webhooks.Secret) == "" && c.App.Env == EnvProduction {
		return errors.New("WEBHOOK_SECRET is required in production")
	}
	if c.Sandbox.Enabled && c.App.Env == EnvProduction {
		return errors.New("sandbox gateway cannot be enabled in production")
	}
	return nil
}

// Method returns the configuration of a payment method by id.
func (p PaymentsConfig) Method(id string) (MethodConfig, bool) {
	for _, m := range p.Methods {
		if m.ID == id {
			return m, true
		}
	}
	return MethodConfig{}, false
}

func (p PaymentsConfig) SupportsCurrency(currency string) bool {
	for _, c := range p.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

func (m MethodConfig) SupportsCurrency(currency string) bool {
	for _, c := range m.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

func defaultMethods(disabled []string) []MethodConfig {
	cardCurrencies := []string{"USD", "EUR", "GBP", "CAD"}
	methods := []MethodConfig{
		{ID: "credit_card", Name: "Credit Card", Description: "Pay with Visa, Mastercard, or American Express", ProcessingTime: "Instant", Enabled: true, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: cardCurrencies},
		{ID: "debit_card", Name: "Debit Card", Description: "Pay directly from your bank card", ProcessingTime: "Instant", Enabled: true, FeeBasisPoints: 260, FeeFixedMinor: 30, Currencies: cardCurrencies},
		{ID: "paypal", Name: "PayPal", Description: "Pay securely with your PayPal account", ProcessingTime: "Instant", Enabled: true, FeeBasisPoints: 349, FeeFixedMinor: 49, Currencies: []string{"USD", "EUR", "GBP", "CAD", "AUD"}},
		{ID: "apple_pay", Name: "Apple Pay", Description: "Pay with Touch ID or Face ID", ProcessingTime: "Instant", Enabled: true, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: cardCurrencies},
		{ID: "google_pay", Name: "Google Pay", Description: "Pay with your Google account", ProcessingTime: "Instant", Enabled: true, FeeBasisPoints: 290, FeeFixedMinor: 30, Currencies: cardCurrencies},
		{ID: "bank_transfer", Name: "Bank Transfer", Description: "Pay by direct bank transfer", ProcessingTime: "1-3 business days", Enabled: true, FeeBasisPoints: 80, FeeFixedMinor: 0, Currencies: []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD", "CNY"}},
	}
	for i := range methods {
		for _, id := range disabled {
			if methods[i].ID == id {
				methods[i].Enabled = false
			}
		}
	}
	return methods
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
