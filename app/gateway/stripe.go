package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type StripeConfig struct {
	SecretKey   string
	APIBaseURL  string
	HTTPTimeout time.Duration
}

// StripeAdapter authorizes card-like methods through PaymentIntents with
// manual capture.
type StripeAdapter struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.stripe.com"
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &StripeAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *StripeAdapter) Name() string {
	return "stripe"
}

func (a *StripeAdapter) Methods() []string {
	return []string{"credit_card", "debit_card", "apple_pay", "google_pay"}
}

type stripeIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	LatestCharge string `json:"latest_charge"`
	LastError    *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeErrorBody struct {
	Error struct {
		Type          string `json:"type"`
		Code          string `json:"code"`
		DeclineCode   string `json:"decline_code"`
		Message       string `json:"message"`
		PaymentIntent *struct {
			ID string `json:"id"`
		} `json:"payment_intent"`
	} `json:"error"`
}

type stripeCardError struct {
	status int
	body   stripeErrorBody
}

func (e *stripeCardError) Error() string {
	return fmt.Sprintf("stripe card error: status=%d code=%s", e.status, e.body.Error.Code)
}

func (a *StripeAdapter) Authorize(ctx context.Context, input *AuthorizeInput) (*AuthorizeResult, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}

	paymentMethod := strings.TrimSpace(input.Details["paymentMethodId"])
	if paymentMethod == "" {
		paymentMethod = strings.TrimSpace(input.Details["token"])
	}
	if paymentMethod == "" {
		return &AuthorizeResult{
			Status:          StatusDeclined,
			ResponseCode:    "missing_payment_method",
			ResponseMessage: "paymentMethodId is required for stripe payments",
		}, nil
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(input.AmountMinor, 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("payment_method", paymentMethod)
	values.Set("capture_method", "manual")
	values.Set("confirm", "true")
	values.Set("metadata[order_id]", input.OrderID)
	values.Set("metadata[method]", input.Method)
	if input.Description != "" {
		values.Set("description", input.Description)
	}

	body, err := a.postForm(ctx, "/v1/payment_intents", values, input.IdempotencyKey)
	if err != nil {
		var cardErr *stripeCardError
		if errors.As(err, &cardErr) {
			return declinedFromStripeError(cardErr.body), nil
		}
		return nil, err
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}
	return resultFromIntent(&intent), nil
}

func (a *StripeAdapter) Capture(ctx context.Context, gatewayTransactionID string, amountMinor int64) (*AuthorizeResult, error) {
	values := url.Values{}
	values.Set("amount_to_capture", strconv.FormatInt(amountMinor, 10))

	body, err := a.postForm(ctx, "/v1/payment_intents/"+url.PathEscape(gatewayTransactionID)+"/capture", values, "capture-"+gatewayTransactionID)
	if err != nil {
		var cardErr *stripeCardError
		if errors.As(err, &cardErr) {
			return declinedFromStripeError(cardErr.body), nil
		}
		return nil, err
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}
	return resultFromIntent(&intent), nil
}

func (a *StripeAdapter) Refund(ctx context.Context, input *RefundInput) (*RefundResult, error) {
	values := url.Values{}
	values.Set("payment_intent", input.GatewayTransactionID)
	values.Set("amount", strconv.FormatInt(input.AmountMinor, 10))
	values.Set("metadata[refund_id]", input.RefundID)
	if reason := stripeRefundReason(input.Reason); reason != "" {
		values.Set("reason", reason)
	}

	body, err := a.postForm(ctx, "/v1/refunds", values, input.RefundID)
	if err != nil {
		var cardErr *stripeCardError
		if errors.As(err, &cardErr) {
			return &RefundResult{Status: RefundFailed, ResponseMessage: cardErr.body.Error.Message}, nil
		}
		return nil, err
	}

	var refund struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	}
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, err
	}

	result := &RefundResult{GatewayRefundID: refund.ID, ResponseMessage: refund.FailureReason}
	switch refund.Status {
	case "succeeded":
		result.Status = RefundCompleted
	case "failed", "canceled":
		result.Status = RefundFailed
	default:
		result.Status = RefundPending
	}
	return result, nil
}

func (a *StripeAdapter) postForm(ctx context.Context, path string, values url.Values, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		var errBody stripeErrorBody
		if json.Unmarshal(body, &errBody) == nil {
			return nil, &stripeCardError{status: resp.StatusCode, body: errBody}
		}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

func resultFromIntent(intent *stripeIntent) *AuthorizeResult {
	result := &AuthorizeResult{
		GatewayTransactionID: intent.ID,
		ResponseCode:         intent.Status,
		AuthorizationCode:    intent.LatestCharge,
	}

	switch intent.Status {
	case "requires_capture":
		result.Status = StatusAuthorized
		result.ResponseMessage = "authorized"
	case "succeeded":
		result.Status = StatusCaptured
		result.ResponseMessage = "captured"
	case "processing":
		result.Status = StatusPending
		result.ResponseMessage = "processing"
	default:
		result.Status = StatusDeclined
		result.ResponseMessage = "payment was not authorized"
		if intent.LastError != nil {
			result.ResponseCode = firstNonEmpty(intent.LastError.DeclineCode, intent.LastError.Code, intent.Status)
			result.ResponseMessage = intent.LastError.Message
		}
	}
	return result
}

func declinedFromStripeError(body stripeErrorBody) *AuthorizeResult {
	result := &AuthorizeResult{
		Status:          StatusDeclined,
		ResponseCode:    firstNonEmpty(body.Error.DeclineCode, body.Error.Code, "card_error"),
		ResponseMessage: body.Error.Message,
	}
	if body.Error.PaymentIntent != nil {
		result.GatewayTransactionID = body.Error.PaymentIntent.ID
	}
	return result
}

func stripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "duplicate":
		return "duplicate"
	case "fraudulent", "fraud":
		return "fraudulent"
	case "requested_by_customer", "customer_request":
		return "requested_by_customer"
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
