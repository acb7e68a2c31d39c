package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/money"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
)

const defaultRequestedBy = "api"

type refundRequest interface {
	GetTransactionId() string
	GetOrderId() string
	GetAmount() *float64
	GetReason() string
	GetRequestedBy() string
}

type RefundResult struct {
	Refund         *entity.Refund
	Order          *entity.Order
	RemainingMinor int64
}

// Refund returns funds of a captured or settled transaction. The amount
// defaults to everything not yet refunded.
func (s *PaymentService) Refund(ctx context.Context, req refundRequest) (*RefundResult, error) {
	transactionID := strings.TrimSpace(req.GetTransactionId())
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transactionId is required", ErrValidation)
	}
	reason := strings.TrimSpace(req.GetReason())
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	unlock := s.transactionLocks.Lock(transactionID)
	defer unlock()

	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
	}
	if orderID := strings.TrimSpace(req.GetOrderId()); orderID != "" && orderID != txn.OrderID {
		return nil, fmt.Errorf("%w: transaction %s does not belong to order %s", ErrValidation, txn.ID, orderID)
	}
	if !txn.Refundable() {
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrInvalidState, txn.ID, txn.Status)
	}

	now := s.now()
	if now.Sub(txn.RefundWindowStart()) > s.paymentsCfg.RefundWindow {
		return nil, fmt.Errorf("%w: transaction %s is older than %s", ErrWindowExpired, txn.ID, s.paymentsCfg.RefundWindow)
	}

	reserved, err := s.refunds.SumReserved(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	remaining := txn.AmountMinor - reserved

	currency := money.Currency(txn.Currency)
	amountMinor := remaining
	if requested := req.GetAmount(); requested != nil {
		if math.IsNaN(*requested) || *requested <= 0 {
			return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
		}
		amountMinor = money.FromMajor(*requested, currency)
		if !representable(*requested, amountMinor, currency) {
			return nil, fmt.Errorf("%w: amount has more decimals than %s allows", ErrInvalidAmount, currency)
		}
	}
	if amountMinor <= 0 || amountMinor > remaining {
		return nil, fmt.Errorf("%w: %s requested, %s refundable", ErrInvalidAmount,
			money.Format(amountMinor, currency), money.Format(remaining, currency))
	}

	requestedBy := strings.TrimSpace(req.GetRequestedBy())
	if requestedBy == "" {
		requestedBy = defaultRequestedBy
	}

	refund := &entity.Refund{
		ID:            "refund_" + ulid.Make().String(),
		OrderID:       txn.OrderID,
		TransactionID: txn.ID,
		AmountMinor:   amountMinor,
		Currency:      txn.Currency,
		Reason:        reason,
		RequestedBy:   requestedBy,
		Status:        entity.RefundStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.ReserveRefund(ctx, refund); err != nil {
		switch {
		case errors.Is(err, repository.ErrRefundExceedsBalance):
			return nil, fmt.Errorf("%w: refund exceeds the remaining balance", ErrInvalidAmount)
		case errors.Is(err, repository.ErrTransactionNotFound):
			return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txn.ID)
		default:
			return nil, err
		}
	}

	s.recordStatusChange(ctx, entity.AggregateRefund, refund.ID, events.RefundRequested, nil, string(refund.Status), map[string]interface{}{
		"transactionId": txn.ID,
		"orderId":       txn.OrderID,
		"amountMinor":   refund.AmountMinor,
		"requestedBy":   refund.RequestedBy,
	})

	outcome := s.refundAtGateway(ctx, txn, refund)

	result, err := s.applyRefundOutcome(context.WithoutCancel(ctx), txn, refund, outcome)
	if err != nil {
		return nil, err
	}
	result.RemainingMinor = remaining - refund.AmountMinor
	if refund.Status == entity.RefundStatusFailed {
		result.RemainingMinor = remaining
	}
	return result, nil
}

// refundAtGateway asks the gateway that captured the funds to return them.
// Gateways without refund support are settled locally.
func (s *PaymentService) refundAtGateway(ctx context.Context, txn *entity.Transaction, refund *entity.Refund) *gateway.RefundResult {
	adapter, err := s.gateways.Get(txn.Gateway.Gateway)
	if err != nil {
		return &gateway.RefundResult{Status: gateway.RefundFailed, ResponseMessage: err.Error()}
	}
	refunder, ok := adapter.(gateway.Refunder)
	if !ok {
		return &gateway.RefundResult{Status: gateway.RefundCompleted}
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout())
	defer cancel()

	outcome, err := refunder.Refund(gatewayCtx, &gateway.RefundInput{
		RefundID:             refund.ID,
		GatewayTransactionID: txn.Gateway.TransactionID,
		AmountMinor:          refund.AmountMinor,
		Currency:             refund.Currency,
		Reason:               refund.Reason,
	})
	if err != nil {
		return &gateway.RefundResult{Status: gateway.RefundFailed, ResponseMessage: describeGatewayFailure(nil, err)}
	}
	return outcome
}

// applyRefundOutcome stores the refund result. A completed refund moves the
// order to partially_refunded or refunded in the same database transaction.
// Callers hold the transaction lock.
func (s *PaymentService) applyRefundOutcome(ctx context.Context, txn *entity.Transaction, refund *entity.Refund, outcome *gateway.RefundResult) (*RefundResult, error) {
	now := s.now()
	oldStatus := refund.Status
	refund.UpdatedAt = now
	if outcome.GatewayRefundID != "" {
		id := outcome.GatewayRefundID
		refund.GatewayRefundID = &id
	}

	var order *entity.Order
	eventType := events.RefundCompleted
	switch outcome.Status {
	case gateway.RefundPending:
		refund.Status = entity.RefundStatusPending
		eventType = ""
	case gateway.RefundFailed:
		reason := outcome.ResponseMessage
		if reason == "" {
			reason = "refund failed"
		}
		refund.Status = entity.RefundStatusFailed
		refund.FailureReason = &reason
		refund.ProcessedAt = &now
		eventType = events.RefundFailed
	default:
		refund.Status = entity.RefundStatusCompleted
		refund.ProcessedAt = &now
	}

	var oldOrderStatus entity.OrderStatus
	if refund.Status == entity.RefundStatusCompleted {
		unlock := s.orderLocks.Lock(refund.OrderID)
		defer unlock()

		found, err := s.orders.FindByID(ctx, refund.OrderID)
		if err != nil {
			return nil, err
		}
		completed, err := s.refunds.SumCompleted(ctx, refund.TransactionID)
		if err != nil {
			return nil, err
		}
		if found != nil {
			next := entity.OrderStatusPartiallyRefunded
			if completed+refund.AmountMinor >= txn.AmountMinor {
				next = entity.OrderStatusRefunded
			}
			if found.Status.CanTransitionTo(next) {
				oldOrderStatus = found.Status
				found.Status = next
				found.UpdatedAt = now
				order = found
			}
		}
	}

	if err := s.store.FinalizeRefund(ctx, refund, order); err != nil {
		return nil, mapRepositoryError(err)
	}

	if eventType != "" {
		payload := map[string]interface{}{
			"transactionId": refund.TransactionID,
			"orderId":       refund.OrderID,
			"amountMinor":   refund.AmountMinor,
		}
		if refund.FailureReason != nil {
			payload["reason"] = *refund.FailureReason
		}
		s.recordStatusChange(ctx, entity.AggregateRefund, refund.ID, eventType, statusPtr(oldStatus), string(refund.Status), payload)
	}
	if order != nil {
		orderEvent := events.OrderPartRefunded
		if order.Status == entity.OrderStatusRefunded {
			orderEvent = events.OrderRefunded
		}
		s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, orderEvent, statusPtr(oldOrderStatus), string(order.Status), map[string]interface{}{
			"refundId": refund.ID,
		})
	}

	return &RefundResult{Refund: refund, Order: order}, nil
}
