package gateway

import (
	"context"
	"errors"
)

var (
	ErrMethodNotSupported = errors.New("payment method is not supported by any gateway")
	ErrNotConfigured      = errors.New("gateway is not configured")
)

type AuthorizationStatus string

const (
	// StatusAuthorized means funds are held and still need a capture.
	StatusAuthorized AuthorizationStatus = "authorized"
	// StatusCaptured means funds were taken in the same call.
	StatusCaptured AuthorizationStatus = "captured"
	// StatusPending means the gateway will report the outcome by webhook.
	StatusPending  AuthorizationStatus = "pending"
	StatusDeclined AuthorizationStatus = "declined"
)

type AuthorizeInput struct {
	OrderID        string
	IdempotencyKey string
	AmountMinor    int64
	Currency       string
	Method         string
	Details        map[string]string
	Description    string
}

type AuthorizeResult struct {
	Status               AuthorizationStatus
	GatewayTransactionID string
	ResponseCode         string
	ResponseMessage      string
	AuthorizationCode    string
}

type RefundStatus string

const (
	RefundCompleted RefundStatus = "completed"
	RefundPending   RefundStatus = "pending"
	RefundFailed    RefundStatus = "failed"
)

type RefundInput struct {
	RefundID             string
	GatewayTransactionID string
	AmountMinor          int64
	Currency             string
	Reason               string
}

type RefundResult struct {
	Status          RefundStatus
	GatewayRefundID string
	ResponseMessage string
}

// Adapter is the minimum every payment gateway implements. Capture and
// refund support are optional and discovered with the Capturer and Refunder
// interfaces.
type Adapter interface {
	Name() string
	Methods() []string
	Authorize(ctx context.Context, input *AuthorizeInput) (*AuthorizeResult, error)
}

type Capturer interface {
	Capture(ctx context.Context, gatewayTransactionID string, amountMinor int64) (*AuthorizeResult, error)
}

type Refunder interface {
	Refund(ctx context.Context, input *RefundInput) (*RefundResult, error)
}
