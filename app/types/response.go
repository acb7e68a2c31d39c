package types

import "time"

// Response is the envelope every HTTP endpoint answers with.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewSuccessResponse(data interface{}, message string, at time.Time) *Response {
	return &Response{Success: true, Data: data, Message: message, Timestamp: at.UTC()}
}

func NewErrorResponse(code string, err string, at time.Time) *Response {
	return &Response{Success: false, Code: code, Error: err, Timestamp: at.UTC()}
}

type OrderItemResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
	Category    string  `json:"category,omitempty"`
	SKU         string  `json:"sku,omitempty"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	MerchantID    string              `json:"merchantId,omitempty"`
	Amount        float64             `json:"amount"`
	Currency      string              `json:"currency"`
	Description   string              `json:"description,omitempty"`
	Status        string              `json:"status"`
	PaymentMethod string              `json:"paymentMethod,omitempty"`
	TransactionID string              `json:"transactionId,omitempty"`
	FailureReason string              `json:"failureReason,omitempty"`
	Items         []OrderItemResponse `json:"items"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	ExpiresAt     time.Time           `json:"expiresAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	CancelledAt   *time.Time          `json:"cancelledAt,omitempty"`
}

type TransactionResponse struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"orderId"`
	UserID               string     `json:"userId"`
	Type                 string     `json:"type"`
	Status               string     `json:"status"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	PaymentMethod        string     `json:"paymentMethod"`
	Gateway              string     `json:"gateway"`
	GatewayTransactionID string     `json:"gatewayTransactionId,omitempty"`
	ResponseCode         string     `json:"responseCode,omitempty"`
	ResponseMessage      string     `json:"responseMessage,omitempty"`
	AuthorizationCode    string     `json:"authorizationCode,omitempty"`
	Fees                 float64    `json:"fees"`
	NetAmount            float64    `json:"netAmount"`
	CreatedAt            time.Time  `json:"createdAt"`
	ProcessedAt          *time.Time `json:"processedAt,omitempty"`
	SettledAt            *time.Time `json:"settledAt,omitempty"`
}

type PaymentResponse struct {
	OrderID       string               `json:"orderId"`
	TransactionID string               `json:"transactionId"`
	Status        string               `json:"status"`
	Order         *OrderResponse       `json:"order"`
	Transaction   *TransactionResponse `json:"transaction"`
}

type OrderStatusResponse struct {
	Order     *OrderResponse `json:"order"`
	Status    string         `json:"status"`
	CheckedAt time.Time      `json:"checkedAt"`
}

type RefundResponse struct {
	ID              string     `json:"id"`
	TransactionID   string     `json:"transactionId"`
	OrderID         string     `json:"orderId"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	GatewayRefundID string     `json:"gatewayRefundId,omitempty"`
	FailureReason   string     `json:"failureReason,omitempty"`
	RequestedBy     string     `json:"requestedBy"`
	CreatedAt       time.Time  `json:"createdAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	RemainingAmount float64    `json:"remainingAmount"`
	OrderStatus     string     `json:"orderStatus,omitempty"`
}

type OrderListResponse struct {
	Orders []*OrderResponse `json:"orders"`
	Total  int64            `json:"total"`
	Page   int32            `json:"page"`
	Limit  int32            `json:"limit"`
	Pages  int64            `json:"pages"`
}

type TransactionListResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
	Total        int64                  `json:"total"`
	Page         int32                  `json:"page"`
	Limit        int32                  `json:"limit"`
	Pages        int64                  `json:"pages"`
}

type PaymentMethodResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	ProcessingTime string   `json:"processingTime,omitempty"`
	Enabled        bool     `json:"enabled"`
	FeePercentage  float64  `json:"feePercentage"`
	FeeFixedMinor  int64    `json:"feeFixedMinor"`
	Currencies     []string `json:"currencies"`
}

type WebhookResponse struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Status      string     `json:"status"`
	RetryCount  int32      `json:"retryCount"`
	LastError   string     `json:"lastError,omitempty"`
	Duplicate   bool       `json:"duplicate"`
	Timestamp   time.Time  `json:"timestamp"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
}

type WebhookListResponse struct {
	Webhooks []*WebhookResponse `json:"webhooks"`
	Limit    int32              `json:"limit"`
	Offset   int32              `json:"offset"`
}

type PluginSettingsResponse struct {
	Enabled    bool  `json:"enabled"`
	AutoStart  bool  `json:"autoStart"`
	Priority   int   `json:"priority"`
	TimeoutMs  int64 `json:"timeoutMs"`
	RetryCount int   `json:"retryCount"`
}

type PluginStatsResponse struct {
	Executions      int64      `json:"executions"`
	Successes       int64      `json:"successes"`
	Failures        int64      `json:"failures"`
	SuccessRate     float64    `json:"successRate"`
	AvgDurationMs   float64    `json:"avgDurationMs"`
	LastExecutionAt *time.Time `json:"lastExecutionAt,omitempty"`
}

type PluginParameterResponse struct {
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

type PluginFunctionResponse struct {
	Name        string                             `json:"name"`
	Description string                             `json:"description,omitempty"`
	Parameters  map[string]PluginParameterResponse `json:"parameters,omitempty"`
}

type PluginResponse struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Version      string                   `json:"version"`
	Description  string                   `json:"description,omitempty"`
	Author       string                   `json:"author,omitempty"`
	Category     string                   `json:"category,omitempty"`
	Capabilities []string                 `json:"capabilities"`
	Functions    []PluginFunctionResponse `json:"functions"`
	State        string                   `json:"state"`
	Installed    bool                     `json:"installed"`
	Source       string                   `json:"source"`
	Location     string                   `json:"location,omitempty"`
	Health       string                   `json:"health"`
	LastError    string                   `json:"lastError,omitempty"`
	Settings     PluginSettingsResponse   `json:"settings"`
	Config       map[string]interface{}   `json:"config,omitempty"`
	Stats        PluginStatsResponse      `json:"stats"`
	InstalledAt  *time.Time               `json:"installedAt,omitempty"`
	StartedAt    *time.Time               `json:"startedAt,omitempty"`
}

type PluginRegistryResponse struct {
	Plugins    []*PluginResponse `json:"plugins"`
	Total      int               `json:"total"`
	Categories []string          `json:"categories"`
	Featured   []string          `json:"featured"`
}

type PluginStatusResponse struct {
	Plugin        *PluginResponse `json:"plugin"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	CheckedAt     time.Time       `json:"checkedAt"`
}

type ExecutionResponse struct {
	ExecutionID string      `json:"executionId"`
	PluginID    string      `json:"pluginId"`
	Function    string      `json:"function"`
	Success     bool        `json:"success"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	DurationMs  int64       `json:"durationMs"`
	Timestamp   time.Time   `json:"timestamp"`
}

type ConnectionResponse struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	PluginID   string                 `json:"pluginId"`
	Status     string                 `json:"status"`
	Config     map[string]interface{} `json:"config,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	LastUsedAt *time.Time             `json:"lastUsedAt,omitempty"`
}

type ConnectionListResponse struct {
	Connections []*ConnectionResponse `json:"connections"`
	Total       int                   `json:"total"`
}

type ExchangeResponse struct {
	MessageID    string             `json:"messageId"`
	ConnectionID string             `json:"connectionId"`
	Action       string             `json:"action"`
	Execution    *ExecutionResponse `json:"execution"`
}
