package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/money"
)

type processPaymentRequest interface {
	GetOrderId() string
	GetPaymentMethod() string
	GetPaymentDetails() map[string]string
}

type PaymentResult struct {
	Order       *entity.Order
	Transaction *entity.Transaction
	Status      entity.OrderStatus
}

// ProcessPayment charges a pending order through the gateway serving the
// requested method. An order that already went through a payment attempt
// returns that attempt instead of charging again.
func (s *PaymentService) ProcessPayment(ctx context.Context, req processPaymentRequest) (*PaymentResult, error) {
	orderID := strings.TrimSpace(req.GetOrderId())
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrValidation)
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	startedAt := s.now()
	status := order.EffectiveStatus(startedAt)
	switch {
	case status == entity.OrderStatusExpired:
		return nil, fmt.Errorf("%w: order %s expired at %s", ErrExpired, order.ID, order.ExpiresAt.Format(time.RFC3339))
	case order.TransactionID != nil:
		return s.existingPaymentResult(ctx, order, status)
	case status != entity.OrderStatusPending:
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, status)
	}

	method := strings.TrimSpace(req.GetPaymentMethod())
	methodCfg, ok := s.paymentsCfg.Method(method)
	if !ok || !methodCfg.Enabled {
		return nil, fmt.Errorf("%w: payment method %q is not available", ErrValidation, method)
	}
	if !methodCfg.SupportsCurrency(order.Currency) {
		return nil, fmt.Errorf("%w: payment method %s does not support %s", ErrValidation, method, order.Currency)
	}
	adapter, err := s.gateways.ForMethod(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrValidation, ErrGatewayMissing, method)
	}

	oldStatus := order.Status
	order.Status = entity.OrderStatusProcessing
	order.PaymentMethod = &method
	order.UpdatedAt = startedAt
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, mapRepositoryError(err)
	}

	result, gatewayErr := s.authorize(ctx, adapter, order, method, req.GetPaymentDetails())

	// The charge outcome must be stored even if the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	finishedAt := s.now()
	currency := money.Currency(order.Currency)
	fees := money.Fee(order.AmountMinor, currency, methodCfg.FeeBasisPoints, methodCfg.FeeFixedMinor)

	txn := &entity.Transaction{
		ID:             "txn_" + ulid.Make().String(),
		OrderID:        order.ID,
		UserID:         order.UserID,
		Type:           entity.TransactionTypePayment,
		PaymentMethod:  method,
		AmountMinor:    order.AmountMinor,
		FeesMinor:      fees,
		NetAmountMinor: order.AmountMinor - fees,
		Currency:       order.Currency,
		Gateway:        entity.GatewayResponse{Gateway: adapter.Name()},
		CreatedAt:      startedAt,
		ProcessedAt:    &finishedAt,
	}
	if result != nil {
		txn.Gateway.TransactionID = result.GatewayTransactionID
		txn.Gateway.ResponseCode = result.ResponseCode
		txn.Gateway.ResponseMessage = result.ResponseMessage
		txn.Gateway.AuthorizationCode = result.AuthorizationCode
	}
	order.TransactionID = &txn.ID
	order.UpdatedAt = finishedAt

	var failureReason string
	switch {
	case gatewayErr != nil || result.Status == gateway.StatusDeclined:
		failureReason = describeGatewayFailure(result, gatewayErr)
		txn.Status = entity.TransactionStatusFailed
		txn.FeesMinor = 0
		txn.NetAmountMinor = 0
		if txn.Gateway.ResponseMessage == "" {
			txn.Gateway.ResponseMessage = failureReason
		}
		if txn.Gateway.ResponseCode == "" {
			txn.Gateway.ResponseCode = gatewayFailureCode(gatewayErr)
		}
		order.Status = entity.OrderStatusFailed
		order.FailureReason = &failureReason
	case result.Status == gateway.StatusPending:
		txn.Status = entity.TransactionStatusAuthorized
	default:
		txn.Status = entity.TransactionStatusCaptured
		order.Status = entity.OrderStatusCompleted
		order.CompletedAt = &finishedAt
	}

	if err := s.store.RecordAttempt(persistCtx, order, txn); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":               order.ID,
			"gateway":                txn.Gateway.Gateway,
			"gateway_transaction_id": txn.Gateway.TransactionID,
			"transaction_status":     txn.Status,
		}).Error("payment attempt not recorded")
		return nil, mapRepositoryError(err)
	}

	payload := map[string]interface{}{
		"transactionId": txn.ID,
		"paymentMethod": method,
		"amountMinor":   txn.AmountMinor,
		"currency":      txn.Currency,
	}
	switch txn.Status {
	case entity.TransactionStatusFailed:
		payload["reason"] = failureReason
		s.recordStatusChange(persistCtx, entity.AggregateOrder, order.ID, events.PaymentFailed, statusPtr(oldStatus), string(order.Status), payload)
		return &PaymentResult{Order: order, Transaction: txn, Status: order.Status}, fmt.Errorf("%w: %s", ErrPaymentFailed, failureReason)
	case entity.TransactionStatusAuthorized:
		s.recordStatusChange(persistCtx, entity.AggregateOrder, order.ID, events.PaymentPending, statusPtr(oldStatus), string(order.Status), payload)
	default:
		payload["feesMinor"] = txn.FeesMinor
		payload["netAmountMinor"] = txn.NetAmountMinor
		s.recordStatusChange(persistCtx, entity.AggregateOrder, order.ID, events.PaymentCompleted, statusPtr(oldStatus), string(order.Status), payload)
	}

	return &PaymentResult{Order: order, Transaction: txn, Status: order.Status}, nil
}

// authorize runs authorize and, when the adapter separates them, capture
// under one gateway deadline. Adapters without capture settle in one call.
func (s *PaymentService) authorize(ctx context.Context, adapter gateway.Adapter, order *entity.Order, method string, details map[string]string) (*gateway.AuthorizeResult, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	result, err := adapter.Authorize(gatewayCtx, &gateway.AuthorizeInput{
		OrderID:        order.ID,
		IdempotencyKey: order.ID,
		AmountMinor:    order.AmountMinor,
		Currency:       order.Currency,
		Method:         method,
		Details:        details,
		Description:    order.Description,
	})
	if err != nil {
		return nil, err
	}
	if result.Status != gateway.StatusAuthorized {
		return result, nil
	}

	capturer, ok := adapter.(gateway.Capturer)
	if !ok {
		result.Status = gateway.StatusCaptured
		return result, nil
	}

	captured, err := capturer.Capture(gatewayCtx, result.GatewayTransactionID, order.AmountMinor)
	if err != nil {
		return result, err
	}
	if captured.GatewayTransactionID == "" {
		captured.GatewayTransactionID = result.GatewayTransactionID
	}
	if captured.AuthorizationCode == "" {
		captured.AuthorizationCode = result.AuthorizationCode
	}
	return captured, nil
}

func (s *PaymentService) existingPaymentResult(ctx context.Context, order *entity.Order, status entity.OrderStatus) (*PaymentResult, error) {
	txn, err := s.transactions.FindByID(ctx, *order.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction %s of order %s", ErrNotFound, *order.TransactionID, order.ID)
	}

	result := &PaymentResult{Order: order, Transaction: txn, Status: status}
	if status == entity.OrderStatusFailed {
		reason := "payment failed"
		if order.FailureReason != nil {
			reason = *order.FailureReason
		}
		return result, fmt.Errorf("%w: %s", ErrPaymentFailed, reason)
	}
	return result, nil
}

func (s *PaymentService) gatewayTimeout() time.Duration {
	if s.paymentsCfg.GatewayTimeout > 0 {
		return s.paymentsCfg.GatewayTimeout
	}
	return 30 * time.Second
}

func describeGatewayFailure(result *gateway.AuthorizeResult, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "gateway timeout"
	case err != nil:
		return truncate("gateway error: "+err.Error(), 512)
	case result != nil && result.ResponseMessage != "":
		return result.ResponseMessage
	case result != nil && result.ResponseCode != "":
		return result.ResponseCode
	default:
		return "payment declined"
	}
}

func gatewayFailureCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "gateway_error"
	default:
		return "declined"
	}
}
