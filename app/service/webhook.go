package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
)

const (
	webhookPaymentCompleted = "payment.completed"
	webhookPaymentFailed    = "payment.failed"
	webhookPaymentCancelled = "payment.cancelled"
	webhookRefundCompleted  = "refund.completed"
	webhookRefundFailed     = "refund.failed"
)

type webhookEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	Created   int64           `json:"created"`
	Timestamp *time.Time      `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type webhookData struct {
	OrderID              string `json:"orderId"`
	TransactionID        string `json:"transactionId"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
	RefundID             string `json:"refundId"`
	GatewayRefundID      string `json:"gatewayRefundId"`
	Reason               string `json:"reason"`
}

type IngestResult struct {
	Webhook   *entity.Webhook
	Duplicate bool
}

// IngestWebhook verifies and records a gateway event, then applies it.
// Processing failures are retried by RunWebhookRetryBatch and never returned
// to the caller; only signature and payload errors are.
func (s *PaymentService) IngestWebhook(ctx context.Context, payload []byte, signature string) (*IngestResult, error) {
	now := s.now()
	if s.webhooksCfg.VerifySignature &&
		!gateway.VerifySignature(payload, signature, s.webhooksCfg.Secret, s.webhooksCfg.SignatureTolerance, now) {
		return nil, ErrSignature
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: webhook payload is not valid JSON", ErrValidation)
	}
	eventName := strings.TrimSpace(envelope.Type)
	if eventName == "" {
		eventName = strings.TrimSpace(envelope.Event)
	}
	if eventName == "" {
		return nil, fmt.Errorf("%w: webhook event type is required", ErrValidation)
	}

	id := strings.TrimSpace(envelope.ID)
	if id == "" {
		id = payloadWebhookID(payload)
	}
	timestamp := now
	switch {
	case envelope.Timestamp != nil:
		timestamp = envelope.Timestamp.UTC()
	case envelope.Created > 0:
		timestamp = time.Unix(envelope.Created, 0).UTC()
	}

	// The lease hands the row to the retry batch if processing never stores
	// an outcome.
	lease := now.Add(s.retryBackoff(1))
	webhook := &entity.Webhook{
		ID:          id,
		Event:       eventName,
		Payload:     string(payload),
		Signature:   signature,
		Timestamp:   timestamp,
		Status:      entity.WebhookStatusPending,
		NextRetryAt: &lease,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.webhooks.Create(ctx, webhook); err != nil {
		if !errors.Is(err, repository.ErrWebhookAlreadyExists) {
			return nil, err
		}
		existing, findErr := s.webhooks.FindByID(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		return &IngestResult{Webhook: existing, Duplicate: true}, nil
	}

	if err := s.processWebhook(context.WithoutCancel(ctx), webhook); err != nil {
		s.logger.WithError(err).WithField("webhook_id", webhook.ID).Error("webhook state not stored")
	}
	return &IngestResult{Webhook: webhook}, nil
}

// payloadWebhookID derives a stable id for events sent without one, so an
// identical redelivery is recognised as a duplicate.
func payloadWebhookID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "wh_" + hex.EncodeToString(sum[:16])
}

func (s *PaymentService) ListFailedWebhooks(ctx context.Context, limit, offset int32) ([]*entity.Webhook, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.webhooks.ListFailed(ctx, limit, offset)
}

// RequeueWebhook puts a permanently failed webhook back into the retry queue
// after manual review.
func (s *PaymentService) RequeueWebhook(ctx context.Context, id string) (*entity.Webhook, error) {
	webhook, err := s.webhooks.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if webhook == nil {
		return nil, fmt.Errorf("%w: webhook %s", ErrNotFound, id)
	}
	if webhook.Status != entity.WebhookStatusFailed {
		return nil, fmt.Errorf("%w: webhook %s is %s", ErrInvalidState, webhook.ID, webhook.Status)
	}

	now := s.now()
	webhook.Status = entity.WebhookStatusPending
	webhook.RetryCount = 0
	webhook.NextRetryAt = &now
	webhook.UpdatedAt = now
	if err := s.webhooks.Update(ctx, webhook); err != nil {
		return nil, mapRepositoryError(err)
	}
	return webhook, nil
}

// processWebhook applies the event and stores the outcome. A failed
// application is scheduled again after retryDelay * 2^(retryCount-1) until
// the configured attempts are used up. The returned error only reports
// storage failures.
func (s *PaymentService) processWebhook(ctx context.Context, webhook *entity.Webhook) error {
	applyErr := s.applyWebhook(ctx, webhook)

	now := s.now()
	webhook.UpdatedAt = now
	if applyErr == nil {
		webhook.Status = entity.WebhookStatusProcessed
		webhook.ProcessedAt = &now
		webhook.NextRetryAt = nil
		webhook.LastError = nil
		return s.webhooks.Update(ctx, webhook)
	}

	msg := truncate(applyErr.Error(), 1024)
	webhook.LastError = &msg

	logger := s.logger.WithError(applyErr).WithFields(logrus.Fields{
		"webhook_id":  webhook.ID,
		"event":       webhook.Event,
		"retry_count": webhook.RetryCount,
	})

	if webhook.RetryCount >= s.webhooksCfg.RetryAttempts {
		webhook.Status = entity.WebhookStatusFailed
		webhook.NextRetryAt = nil
		if err := s.webhooks.Update(ctx, webhook); err != nil {
			return err
		}
		logger.Error("webhook failed permanently")
		s.recordStatusChange(ctx, entity.AggregateWebhook, webhook.ID, events.WebhookFailed, statusPtr(entity.WebhookStatusPending), string(webhook.Status), map[string]interface{}{
			"event": webhook.Event,
			"error": msg,
		})
		return nil
	}

	webhook.RetryCount++
	next := now.Add(s.retryBackoff(webhook.RetryCount))
	webhook.NextRetryAt = &next
	logger.WithField("next_retry_at", next).Warn("webhook processing failed")
	return s.webhooks.Update(ctx, webhook)
}

func (s *PaymentService) retryBackoff(retryCount int32) time.Duration {
	delay := s.webhooksCfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if retryCount < 1 {
		retryCount = 1
	}
	return delay * time.Duration(int64(1)<<uint(retryCount-1))
}

func (s *PaymentService) applyWebhook(ctx context.Context, webhook *entity.Webhook) error {
	var envelope webhookEnvelope
	if err := json.Unmarshal([]byte(webhook.Payload), &envelope); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	var data webhookData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}

	switch webhook.Event {
	case webhookPaymentCompleted:
		return s.settleFromWebhook(ctx, &data)
	case webhookPaymentFailed:
		return s.failFromWebhook(ctx, &data)
	case webhookPaymentCancelled:
		return s.cancelFromWebhook(ctx, &data)
	case webhookRefundCompleted:
		return s.finalizeRefundFromWebhook(ctx, &data, gateway.RefundCompleted)
	case webhookRefundFailed:
		return s.finalizeRefundFromWebhook(ctx, &data, gateway.RefundFailed)
	default:
		return nil
	}
}

func (s *PaymentService) resolveTransaction(ctx context.Context, data *webhookData) (*entity.Transaction, error) {
	if data.TransactionID != "" {
		return s.transactions.FindByID(ctx, data.TransactionID)
	}
	if data.GatewayTransactionID != "" {
		return s.transactions.FindByGatewayID(ctx, data.GatewayTransactionID)
	}
	if data.OrderID != "" {
		order, err := s.orders.FindByID(ctx, data.OrderID)
		if err != nil || order == nil || order.TransactionID == nil {
			return nil, err
		}
		return s.transactions.FindByID(ctx, *order.TransactionID)
	}
	return nil, errors.New("webhook carries no transaction reference")
}

func (s *PaymentService) settleFromWebhook(ctx context.Context, data *webhookData) error {
	txn, err := s.resolveTransaction(ctx, data)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("%w: transaction for webhook", ErrNotFound)
	}

	unlock := s.orderLocks.Lock(txn.OrderID)
	defer unlock()

	// Re-read under the lock.
	txn, err = s.transactions.FindByID(ctx, txn.ID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("%w: transaction for webhook", ErrNotFound)
	}
	switch txn.Status {
	case entity.TransactionStatusSettled:
		return nil
	case entity.TransactionStatusFailed:
		return fmt.Errorf("%w: transaction %s already failed", ErrInvalidState, txn.ID)
	}

	now := s.now()
	oldTxnStatus := txn.Status
	txn.Status = entity.TransactionStatusSettled
	txn.SettledAt = &now
	if txn.ProcessedAt == nil {
		txn.ProcessedAt = &now
	}

	order, err := s.orders.FindByID(ctx, txn.OrderID)
	if err != nil {
		return err
	}
	var oldOrderStatus entity.OrderStatus
	if order != nil && order.Status == entity.OrderStatusProcessing {
		oldOrderStatus = order.Status
		order.Status = entity.OrderStatusCompleted
		order.CompletedAt = &now
		order.UpdatedAt = now
	} else {
		order = nil
	}

	if err := s.store.SettleTransaction(ctx, txn, order); err != nil {
		return mapRepositoryError(err)
	}

	s.recordStatusChange(ctx, entity.AggregateTransaction, txn.ID, events.PaymentSettled, statusPtr(oldTxnStatus), string(txn.Status), map[string]interface{}{
		"orderId": txn.OrderID,
	})
	if order != nil {
		s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, events.PaymentCompleted, statusPtr(oldOrderStatus), string(order.Status), map[string]interface{}{
			"transactionId": txn.ID,
		})
	}
	return nil
}

func (s *PaymentService) failFromWebhook(ctx context.Context, data *webhookData) error {
	orderID := data.OrderID
	if orderID == "" {
		txn, err := s.resolveTransaction(ctx, data)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("%w: transaction for webhook", ErrNotFound)
		}
		orderID = txn.OrderID
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if order.Status != entity.OrderStatusProcessing {
		return nil
	}

	now := s.now()
	reason := strings.TrimSpace(data.Reason)
	if reason == "" {
		reason = "payment failed at gateway"
	}
	order.Status = entity.OrderStatusFailed
	order.FailureReason = &reason
	order.UpdatedAt = now

	var txn *entity.Transaction
	if order.TransactionID != nil {
		txn, err = s.transactions.FindByID(ctx, *order.TransactionID)
		if err != nil {
			return err
		}
	}
	if txn != nil && !txn.Immutable() {
		txn.Status = entity.TransactionStatusFailed
		txn.Gateway.ResponseMessage = reason
		err = s.store.SettleTransaction(ctx, txn, order)
	} else {
		err = s.orders.Update(ctx, order)
	}
	if err != nil {
		return mapRepositoryError(err)
	}

	s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, events.PaymentFailed, statusPtr(entity.OrderStatusProcessing), string(order.Status), map[string]interface{}{
		"reason": reason,
	})
	return nil
}

func (s *PaymentService) cancelFromWebhook(ctx context.Context, data *webhookData) error {
	if data.OrderID == "" {
		return errors.New("payment.cancelled webhook without orderId")
	}

	unlock := s.orderLocks.Lock(data.OrderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, data.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: order %s", ErrNotFound, data.OrderID)
	}
	if order.Status != entity.OrderStatusPending {
		return nil
	}

	now := s.now()
	order.Status = entity.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return mapRepositoryError(err)
	}

	s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, events.OrderCancelled, statusPtr(entity.OrderStatusPending), string(order.Status), nil)
	return nil
}

func (s *PaymentService) finalizeRefundFromWebhook(ctx context.Context, data *webhookData, status gateway.RefundStatus) error {
	var refund *entity.Refund
	var err error
	switch {
	case data.RefundID != "":
		refund, err = s.refunds.FindByID(ctx, data.RefundID)
	case data.GatewayRefundID != "":
		refund, err = s.refunds.FindByGatewayRefundID(ctx, data.GatewayRefundID)
	default:
		return errors.New("refund webhook carries no refund reference")
	}
	if err != nil {
		return err
	}
	if refund == nil {
		return fmt.Errorf("%w: refund for webhook", ErrNotFound)
	}

	unlock := s.transactionLocks.Lock(refund.TransactionID)
	defer unlock()

	refund, err = s.refunds.FindByID(ctx, refund.ID)
	if err != nil {
		return err
	}
	if refund == nil {
		return fmt.Errorf("%w: refund for webhook", ErrNotFound)
	}
	if refund.Status == entity.RefundStatusCompleted || refund.Status == entity.RefundStatusFailed {
		return nil
	}

	txn, err := s.transactions.FindByID(ctx, refund.TransactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, refund.TransactionID)
	}

	outcome := &gateway.RefundResult{Status: status, GatewayRefundID: data.GatewayRefundID, ResponseMessage: data.Reason}
	_, err = s.applyRefundOutcome(ctx, txn, refund, outcome)
	return err
}
