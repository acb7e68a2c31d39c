package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newStripeTestServer(t *testing.T, handler http.HandlerFunc) *StripeAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStripeAdapter(StripeConfig{SecretKey: "sk_test", APIBaseURL: srv.URL, HTTPTimeout: time.Second})
}

func TestStripeAuthorizeRequiresCapture(t *testing.T) {
	adapter := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "order_1" {
			t.Errorf("unexpected idempotency key: %s", r.Header.Get("Idempotency-Key"))
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("unexpected authorization header")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("amount") != "10000" || r.PostForm.Get("currency") != "usd" {
			t.Errorf("unexpected amount fields: %v", r.PostForm)
		}
		if r.PostForm.Get("capture_method") != "manual" || r.PostForm.Get("payment_method") != "pm_card_visa" {
			t.Errorf("unexpected intent fields: %v", r.PostForm)
		}
		if r.PostForm.Get("metadata[order_id]") != "order_1" {
			t.Errorf("missing order metadata: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_capture","latest_charge":"ch_1"}`))
	})

	result, err := adapter.Authorize(context.Background(), &AuthorizeInput{
		OrderID:        "order_1",
		IdempotencyKey: "order_1",
		AmountMinor:    10000,
		Currency:       "USD",
		Method:         "credit_card",
		Details:        map[string]string{"paymentMethodId": "pm_card_visa"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusAuthorized || result.GatewayTransactionID != "pi_123" || result.AuthorizationCode != "ch_1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeAuthorizeCardDeclined(t *testing.T) {
	adapter := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds.","payment_intent":{"id":"pi_9"}}}`))
	})

	result, err := adapter.Authorize(context.Background(), &AuthorizeInput{
		OrderID:        "order_1",
		IdempotencyKey: "order_1",
		AmountMinor:    500,
		Currency:       "EUR",
		Details:        map[string]string{"paymentMethodId": "pm_card_chargeDeclined"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusDeclined || result.ResponseCode != "insufficient_funds" || result.GatewayTransactionID != "pi_9" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeAuthorizeServerError(t *testing.T) {
	adapter := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	})

	_, err := adapter.Authorize(context.Background(), &AuthorizeInput{
		OrderID:        "order_1",
		IdempotencyKey: "order_1",
		Details:        map[string]string{"paymentMethodId": "pm_x"},
	})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestStripeAuthorizeWithoutSecret(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{})
	_, err := adapter.Authorize(context.Background(), &AuthorizeInput{OrderID: "order_1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStripeAuthorizeMissingPaymentMethod(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{SecretKey: "sk_test"})
	result, err := adapter.Authorize(context.Background(), &AuthorizeInput{OrderID: "order_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusDeclined || result.ResponseCode != "missing_payment_method" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStripeCaptureAndRefund(t *testing.T) {
	adapter := newStripeTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents/pi_123/capture":
			_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
		case "/v1/refunds":
			if r.Header.Get("Idempotency-Key") != "refund_1" {
				t.Errorf("unexpected idempotency key: %s", r.Header.Get("Idempotency-Key"))
			}
			_ = r.ParseForm()
			if r.PostForm.Get("payment_intent") != "pi_123" || r.PostForm.Get("reason") != "requested_by_customer" {
				t.Errorf("unexpected refund form: %v", r.PostForm)
			}
			_, _ = w.Write([]byte(`{"id":"re_1","status":"pending"}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	captured, err := adapter.Capture(context.Background(), "pi_123", 10000)
	if err != nil {
		t.Fatalf("unexpected capture error: %v", err)
	}
	if captured.Status != StatusCaptured {
		t.Fatalf("expected captured, got %+v", captured)
	}

	refund, err := adapter.Refund(context.Background(), &RefundInput{
		RefundID:             "refund_1",
		GatewayTransactionID: "pi_123",
		AmountMinor:          2500,
		Currency:             "USD",
		Reason:               "customer_request",
	})
	if err != nil {
		t.Fatalf("unexpected refund error: %v", err)
	}
	if refund.Status != RefundPending || refund.GatewayRefundID != "re_1" {
		t.Fatalf("unexpected refund result: %+v", refund)
	}
}

func TestResultFromIntent(t *testing.T) {
	cases := map[string]AuthorizationStatus{
		"requires_capture":        StatusAuthorized,
		"succeeded":               StatusCaptured,
		"processing":              StatusPending,
		"requires_payment_method": StatusDeclined,
		"canceled":                StatusDeclined,
	}
	for status, want := range cases {
		got := resultFromIntent(&stripeIntent{ID: "pi_1", Status: status})
		if got.Status != want {
			t.Fatalf("status %s: expected %s, got %s", status, want, got.Status)
		}
	}
}
