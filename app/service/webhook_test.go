package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
)

func signed(f *paymentFixture, payload string) ([]byte, string) {
	body := []byte(payload)
	return body, gateway.SignPayload(body, "whsec_test", f.clock.Now())
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture()
	body := []byte(`{"id":"evt_1","type":"payment.completed","data":{}}`)

	cases := map[string]string{
		"missing":      "",
		"wrong secret": gateway.SignPayload(body, "other", f.clock.Now()),
		"stale":        gateway.SignPayload(body, "whsec_test", f.clock.Now().Add(-time.Hour)),
	}
	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.service.IngestWebhook(context.Background(), body, signature); !errors.Is(err, ErrSignature) {
				t.Fatalf("expected signature error, got %v", err)
			}
		})
	}
	if f.store.webhook("evt_1") != nil {
		t.Fatalf("rejected webhook must not be stored")
	}
}

func TestIngestWebhookSkipsVerificationWhenDisabled(t *testing.T) {
	f := newPaymentFixture()
	f.service.webhooksCfg.VerifySignature = false

	result, err := f.service.IngestWebhook(context.Background(), []byte(`{"type":"customer.updated"}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Webhook.ID == "" || result.Webhook.Status != entity.WebhookStatusProcessed {
		t.Fatalf("expected generated id and processed status, got %+v", result.Webhook)
	}
}

func TestIngestWebhookRejectsMalformedPayload(t *testing.T) {
	f := newPaymentFixture()

	for name, payload := range map[string]string{
		"not json": `not-json`,
		"no type":  `{"id":"evt_x","data":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			body, sig := signed(f, payload)
			if _, err := f.service.IngestWebhook(context.Background(), body, sig); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestIngestWebhookDeduplicates(t *testing.T) {
	f := newPaymentFixture()
	body, sig := signed(f, `{"id":"evt_dup","event":"customer.updated","data":{}}`)

	first, err := f.service.IngestWebhook(context.Background(), body, sig)
	if err != nil || first.Duplicate {
		t.Fatalf("unexpected first ingest: %+v %v", first, err)
	}
	second, err := f.service.IngestWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Duplicate || second.Webhook.ID != "evt_dup" {
		t.Fatalf("expected duplicate result, got %+v", second)
	}
}

func TestIngestWebhookCancelsPendingOrder(t *testing.T) {
	f := newPaymentFixture()
	order := createTestOrder(t, f, 10, "USD")

	body, sig := signed(f, `{"id":"evt_cancel","type":"payment.cancelled","data":{"orderId":"`+order.ID+`"}}`)
	if _, err := f.service.IngestWebhook(context.Background(), body, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.store.order(order.ID).Status; got != entity.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", got)
	}
}

func TestIngestWebhookFailsProcessingOrder(t *testing.T) {
	gw := &scriptedGateway{name: "async", methods: []string{"credit_card"}, authorize: gateway.StatusPending}
	f := newPaymentFixture(gw)
	order, txn := paidOrder(t, f, 10)

	body, sig := signed(f, `{"id":"evt_fail","type":"payment.failed","data":{"transactionId":"`+txn.ID+`","reason":"insufficient_funds"}}`)
	if _, err := f.service.IngestWebhook(context.Background(), body, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.store.order(order.ID)
	if stored.Status != entity.OrderStatusFailed || stored.FailureReason == nil || *stored.FailureReason != "insufficient_funds" {
		t.Fatalf("expected failed order with reason, got %+v", stored)
	}
	if got := f.store.transaction(txn.ID).Status; got != entity.TransactionStatusFailed {
		t.Fatalf("expected failed transaction, got %s", got)
	}
}

func TestWebhookRetryBackoffAndFailure(t *testing.T) {
	f := newPaymentFixture()
	body, sig := signed(f, `{"id":"evt_retry","type":"payment.completed","data":{"transactionId":"txn_missing"}}`)

	result, err := f.service.IngestWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("ingest must succeed even when processing fails: %v", err)
	}
	if result.Webhook.Status != entity.WebhookStatusPending || result.Webhook.RetryCount != 1 {
		t.Fatalf("expected pending webhook with one retry, got %+v", result.Webhook)
	}

	// Retries are due after 2s, 4s, 8s and 16s.
	for retry := int32(1); retry <= 4; retry++ {
		stored := f.store.webhook("evt_retry")
		expected := 2 * time.Second * time.Duration(int64(1)<<uint(retry-1))
		if got := stored.NextRetryAt.Sub(stored.UpdatedAt); got != expected {
			t.Fatalf("retry %d: expected backoff %s, got %s", retry, expected, got)
		}

		if err := f.service.RunWebhookRetryBatch(context.Background()); err != nil {
			t.Fatalf("batch: %v", err)
		}
		if got := f.store.webhook("evt_retry").RetryCount; got != retry {
			t.Fatalf("retry must wait for the backoff, count moved to %d", got)
		}

		f.clock.Advance(expected)
		if err := f.service.RunWebhookRetryBatch(context.Background()); err != nil {
			t.Fatalf("batch: %v", err)
		}
	}

	stored := f.store.webhook("evt_retry")
	if stored.RetryCount != 5 || stored.Status != entity.WebhookStatusPending {
		t.Fatalf("expected fifth retry scheduled, got count=%d status=%s", stored.RetryCount, stored.Status)
	}
	f.clock.Advance(32 * time.Second)
	if err := f.service.RunWebhookRetryBatch(context.Background()); err != nil {
		t.Fatalf("batch: %v", err)
	}

	stored = f.store.webhook("evt_retry")
	if stored.Status != entity.WebhookStatusFailed || stored.NextRetryAt != nil || stored.LastError == nil {
		t.Fatalf("expected permanently failed webhook, got %+v", stored)
	}
	if !f.publisher.has(events.WebhookFailed) {
		t.Fatalf("expected %s event", events.WebhookFailed)
	}

	failed, err := f.service.ListFailedWebhooks(context.Background(), 0, 0)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected one failed webhook, got %d (%v)", len(failed), err)
	}
}

func TestRequeueWebhook(t *testing.T) {
	f := newPaymentFixture()
	now := f.clock.Now().UTC()
	f.store.webhooks["evt_failed"] = &entity.Webhook{
		ID:         "evt_failed",
		Event:      "payment.completed",
		Payload:    `{"id":"evt_failed","type":"payment.completed","data":{}}`,
		Status:     entity.WebhookStatusFailed,
		RetryCount: 5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.store.webhooks["evt_done"] = &entity.Webhook{ID: "evt_done", Status: entity.WebhookStatusProcessed}

	item, err := f.service.RequeueWebhook(context.Background(), "evt_failed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != entity.WebhookStatusPending || item.RetryCount != 0 || item.NextRetryAt == nil {
		t.Fatalf("expected requeued webhook, got %+v", item)
	}

	if _, err := f.service.RequeueWebhook(context.Background(), "evt_done"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := f.service.RequeueWebhook(context.Background(), "evt_none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type flakyWebhookUpdates struct {
	memWebhooks
	failures int
}

func (r *flakyWebhookUpdates) Update(ctx context.Context, webhook *entity.Webhook) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	return r.memWebhooks.Update(ctx, webhook)
}

func TestIngestWebhookLeaseRecoversLostOutcome(t *testing.T) {
	f := newPaymentFixture()
	f.service.webhooks = &flakyWebhookUpdates{memWebhooks: memWebhooks{f.store}, failures: 1}
	body, sig := signed(f, `{"id":"evt_lost","type":"payment.completed","data":{"transactionId":"txn_missing"}}`)

	if _, err := f.service.IngestWebhook(context.Background(), body, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.store.webhook("evt_lost")
	if stored.Status != entity.WebhookStatusPending || stored.RetryCount != 0 {
		t.Fatalf("expected untouched pending row, got %+v", stored)
	}
	if stored.NextRetryAt == nil || !stored.NextRetryAt.Equal(stored.CreatedAt.Add(2*time.Second)) {
		t.Fatalf("expected lease at created+2s, got %v", stored.NextRetryAt)
	}

	f.clock.Advance(2 * time.Second)
	if err := f.service.RunWebhookRetryBatch(context.Background()); err != nil {
		t.Fatalf("batch: %v", err)
	}
	stored = f.store.webhook("evt_lost")
	if stored.RetryCount != 1 || stored.LastError == nil || stored.NextRetryAt == nil {
		t.Fatalf("expected the retry batch to pick up the leased webhook, got %+v", stored)
	}
}

func TestIngestWebhookWithoutIDDeduplicatesByPayload(t *testing.T) {
	f := newPaymentFixture()
	body, sig := signed(f, `{"type":"customer.updated","data":{"customer":"cus_1"}}`)

	first, err := f.service.IngestWebhook(context.Background(), body, sig)
	if err != nil || first.Duplicate {
		t.Fatalf("unexpected first ingest: %+v %v", first, err)
	}
	second, err := f.service.IngestWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Duplicate || second.Webhook.ID != first.Webhook.ID {
		t.Fatalf("expected replay to match %s, got %+v", first.Webhook.ID, second)
	}

	other, sig := signed(f, `{"type":"customer.updated","data":{"customer":"cus_2"}}`)
	third, err := f.service.IngestWebhook(context.Background(), other, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Duplicate || third.Webhook.ID == first.Webhook.ID {
		t.Fatalf("expected a distinct webhook for a different payload, got %+v", third)
	}
}
