package gateway

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// DeclinedCardSuffix makes the sandbox decline a card, the way test card
// numbers ending in 0002 behave on real gateways.
const DeclinedCardSuffix = "0002"

// SandboxAdapter is a deterministic in-process gateway. It holds funds on
// authorize and supports capture and refunds.
type SandboxAdapter struct {
	methods []string
}

func NewSandboxAdapter(methods []string) *SandboxAdapter {
	items := make([]string, len(methods))
	copy(items, methods)
	return &SandboxAdapter{methods: items}
}

func (a *SandboxAdapter) Name() string {
	return "sandbox"
}

func (a *SandboxAdapter) Methods() []string {
	return a.methods
}

func (a *SandboxAdapter) Authorize(ctx context.Context, input *AuthorizeInput) (*AuthorizeResult, error) {
	if input.Details["simulate"] == "timeout" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.HasSuffix(strings.TrimSpace(input.Details["cardNumber"]), DeclinedCardSuffix) {
		return &AuthorizeResult{
			Status:          StatusDeclined,
			ResponseCode:    "card_declined",
			ResponseMessage: "Your card was declined.",
		}, nil
	}

	id := ulid.Make().String()
	return &AuthorizeResult{
		Status:               StatusAuthorized,
		GatewayTransactionID: "sbx_" + strings.ToLower(id),
		ResponseCode:         "approved",
		ResponseMessage:      "authorized",
		AuthorizationCode:    id[len(id)-6:],
	}, nil
}

func (a *SandboxAdapter) Capture(ctx context.Context, gatewayTransactionID string, _ int64) (*AuthorizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &AuthorizeResult{
		Status:               StatusCaptured,
		GatewayTransactionID: gatewayTransactionID,
		ResponseCode:         "approved",
		ResponseMessage:      "captured",
	}, nil
}

func (a *SandboxAdapter) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &RefundResult{
		Status:          RefundCompleted,
		GatewayRefundID: "sbx_re_" + strings.ToLower(ulid.Make().String()),
		ResponseMessage: "refunded",
	}, nil
}
