package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID           = "X-User-ID"
	HeaderWebhookSignature = "X-Webhook-Signature"
	headerStripeSignature  = "Stripe-Signature"
)

type OrderItemRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=1000"`
	Quantity    int64   `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	TotalPrice  float64 `json:"totalPrice" validate:"gte=0"`
	Category    string  `json:"category"`
	SKU         string  `json:"sku"`
}

type CreateOrderRequest struct {
	UserId      string             `json:"userId" validate:"required,max=128"`
	MerchantId  string             `json:"merchantId" validate:"max=128"`
	Amount      float64            `json:"amount" validate:"gt=0"`
	Currency    string             `json:"currency" validate:"required,len=3"`
	Description string             `json:"description" validate:"max=500"`
	Items       []OrderItemRequest `json:"items" validate:"dive"`
	Metadata    map[string]string  `json:"metadata"`
}

func (r *CreateOrderRequest) GetUserId() string              { return r.UserId }
func (r *CreateOrderRequest) GetMerchantId() string          { return r.MerchantId }
func (r *CreateOrderRequest) GetAmount() float64             { return r.Amount }
func (r *CreateOrderRequest) GetCurrency() string            { return r.Currency }
func (r *CreateOrderRequest) GetDescription() string         { return r.Description }
func (r *CreateOrderRequest) GetItems() []OrderItemRequest   { return r.Items }
func (r *CreateOrderRequest) GetMetadata() map[string]string { return r.Metadata }

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.UserId = strings.TrimSpace(body.UserId)
	if body.UserId == "" {
		body.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
	body.MerchantId = strings.TrimSpace(body.MerchantId)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Description = strings.TrimSpace(body.Description)

	return &body, nil
}

func (r *CreateOrderRequest) Validate() error {
	return validateStruct(r)
}

type OrderIDRequest struct {
	OrderId string `validate:"required,startswith=order_"`
}

func NewOrderIDRequestFromContext(ctx echo.Context) (*OrderIDRequest, error) {
	return &OrderIDRequest{OrderId: strings.TrimSpace(ctx.Param("orderId"))}, nil
}

func (r *OrderIDRequest) Validate() error {
	if r.OrderId == "" {
		return errors.New("orderId is required")
	}
	if err := validateStruct(r); err != nil {
		return errors.New("invalid order id")
	}
	return nil
}

type ProcessPaymentRequest struct {
	OrderId        string            `json:"orderId" validate:"required"`
	PaymentMethod  string            `json:"paymentMethod" validate:"required,max=64"`
	PaymentDetails map[string]string `json:"paymentDetails"`
}

func (r *ProcessPaymentRequest) GetOrderId() string                   { return r.OrderId }
func (r *ProcessPaymentRequest) GetPaymentMethod() string             { return r.PaymentMethod }
func (r *ProcessPaymentRequest) GetPaymentDetails() map[string]string { return r.PaymentDetails }

func NewProcessPaymentRequestFromContext(ctx echo.Context) (*ProcessPaymentRequest, error) {
	var body ProcessPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.OrderId = strings.TrimSpace(body.OrderId)
	body.PaymentMethod = strings.ToLower(strings.TrimSpace(body.PaymentMethod))
	return &body, nil
}

func (r *ProcessPaymentRequest) Validate() error {
	return validateStruct(r)
}

// RefundRequest leaves Amount unchecked here: its bounds depend on the
// refundable balance and are enforced by the refund operation.
type RefundRequest struct {
	TransactionId string   `json:"transactionId" validate:"required"`
	OrderId       string   `json:"orderId"`
	Amount        *float64 `json:"amount"`
	Reason        string   `json:"reason" validate:"required,max=500"`
	RequestedBy   string   `json:"requestedBy" validate:"max=128"`
}

func (r *RefundRequest) GetTransactionId() string { return r.TransactionId }
func (r *RefundRequest) GetOrderId() string       { return r.OrderId }
func (r *RefundRequest) GetAmount() *float64      { return r.Amount }
func (r *RefundRequest) GetReason() string        { return r.Reason }
func (r *RefundRequest) GetRequestedBy() string   { return r.RequestedBy }

func NewRefundRequestFromContext(ctx echo.Context) (*RefundRequest, error) {
	var body RefundRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.TransactionId = strings.TrimSpace(body.TransactionId)
	body.OrderId = strings.TrimSpace(body.OrderId)
	body.Reason = strings.TrimSpace(body.Reason)
	body.RequestedBy = strings.TrimSpace(body.RequestedBy)
	if body.RequestedBy == "" {
		body.RequestedBy = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}
	return &body, nil
}

func (r *RefundRequest) Validate() error {
	return validateStruct(r)
}

type ListOrdersRequest struct {
	UserId string `validate:"required,max=255"`
	Page   int32  `validate:"gte=1"`
	Limit  int32  `validate:"gte=1,lte=100"`
}

func (r *ListOrdersRequest) GetUserId() string { return r.UserId }
func (r *ListOrdersRequest) GetPage() int32    { return r.Page }
func (r *ListOrdersRequest) GetLimit() int32   { return r.Limit }

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	req := &ListOrdersRequest{
		UserId: strings.TrimSpace(ctx.QueryParam("userId")),
		Page:   1,
		Limit:  20,
	}
	if req.UserId == "" {
		req.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}

	var err error
	if req.Page, err = parseInt32Query(ctx, "page", req.Page); err != nil {
		return nil, err
	}
	if req.Limit, err = parseInt32Query(ctx, "limit", req.Limit); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ListOrdersRequest) Validate() error {
	return validateStruct(r)
}

type ListTransactionsRequest struct {
	UserId string `validate:"required"`
	Status string `validate:"omitempty,oneof=authorized captured settled failed"`
	Page   int32  `validate:"gte=1"`
	Limit  int32  `validate:"gte=1,lte=100"`
}

func (r *ListTransactionsRequest) GetUserId() string { return r.UserId }
func (r *ListTransactionsRequest) GetStatus() string { return r.Status }
func (r *ListTransactionsRequest) GetPage() int32    { return r.Page }
func (r *ListTransactionsRequest) GetLimit() int32   { return r.Limit }

func NewListTransactionsRequestFromContext(ctx echo.Context) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		UserId: strings.TrimSpace(ctx.QueryParam("userId")),
		Status: strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))),
		Page:   1,
		Limit:  20,
	}
	if req.UserId == "" {
		req.UserId = strings.TrimSpace(ctx.Request().Header.Get(HeaderUserID))
	}

	var err error
	if req.Page, err = parseInt32Query(ctx, "page", req.Page); err != nil {
		return nil, err
	}
	if req.Limit, err = parseInt32Query(ctx, "limit", req.Limit); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	return validateStruct(r)
}

type ListFailedWebhooksRequest struct {
	Limit  int32 `validate:"gte=1,lte=100"`
	Offset int32 `validate:"gte=0"`
}

func NewListFailedWebhooksRequestFromContext(ctx echo.Context) (*ListFailedWebhooksRequest, error) {
	req := &ListFailedWebhooksRequest{Limit: 20}

	var err error
	if req.Limit, err = parseInt32Query(ctx, "limit", req.Limit); err != nil {
		return nil, err
	}
	if req.Offset, err = parseInt32Query(ctx, "offset", req.Offset); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ListFailedWebhooksRequest) Validate() error {
	return validateStruct(r)
}

type WebhookIDRequest struct {
	WebhookId string `validate:"required,max=255"`
}

func NewWebhookIDRequestFromContext(ctx echo.Context) (*WebhookIDRequest, error) {
	return &WebhookIDRequest{WebhookId: strings.TrimSpace(ctx.Param("webhookId"))}, nil
}

func (r *WebhookIDRequest) Validate() error {
	return validateStruct(r)
}

// WebhookRequest keeps the body as received: the signature covers the exact
// bytes.
type WebhookRequest struct {
	Payload   []byte
	Signature string
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	signature := strings.TrimSpace(ctx.Request().Header.Get(HeaderWebhookSignature))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get(headerStripeSignature))
	}

	return &WebhookRequest{Payload: rawBody, Signature: signature}, nil
}

func (r *WebhookRequest) Validate() error {
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

func parseInt32Query(ctx echo.Context, name string, fallback int32) (int32, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return int32(v), nil
}
