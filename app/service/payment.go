package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/gateway"
	"github.com/vibast-solutions/ms-go-integrations/app/lock"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/config"
	"github.com/zoobzio/clockz"
)

const (
	defaultListLimit = int32(20)
	maxListLimit     = int32(100)
	defaultBatchSize = int32(100)
)

type orderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error)
	Count(ctx context.Context, filter repository.OrderFilter) (int64, error)
}

type transactionRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Transaction, error)
	FindByGatewayID(ctx context.Context, gatewayTransactionID string) (*entity.Transaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	Count(ctx context.Context, filter repository.TransactionFilter) (int64, error)
}

type refundRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Refund, error)
	FindByGatewayRefundID(ctx context.Context, gatewayRefundID string) (*entity.Refund, error)
	SumReserved(ctx context.Context, transactionID string) (int64, error)
	SumCompleted(ctx context.Context, transactionID string) (int64, error)
}

type webhookRepository interface {
	Create(ctx context.Context, webhook *entity.Webhook) error
	Update(ctx context.Context, webhook *entity.Webhook) error
	FindByID(ctx context.Context, id string) (*entity.Webhook, error)
	ListDueRetry(ctx context.Context, now time.Time, limit int32) ([]*entity.Webhook, error)
	ListFailed(ctx context.Context, limit, offset int32) ([]*entity.Webhook, error)
}

type statusChangeRepository interface {
	Create(ctx context.Context, change *entity.StatusChange) error
}

// paymentStore holds the multi-row writes that commit atomically.
type paymentStore interface {
	RecordAttempt(ctx context.Context, order *entity.Order, txn *entity.Transaction) error
	ReserveRefund(ctx context.Context, refund *entity.Refund) error
	FinalizeRefund(ctx context.Context, refund *entity.Refund, order *entity.Order) error
	SettleTransaction(ctx context.Context, txn *entity.Transaction, order *entity.Order) error
}

type PaymentRepositories struct {
	Orders        orderRepository
	Transactions  transactionRepository
	Refunds       refundRepository
	Webhooks      webhookRepository
	StatusChanges statusChangeRepository
	Store         paymentStore
}

type PaymentService struct {
	orders        orderRepository
	transactions  transactionRepository
	refunds       refundRepository
	webhooks      webhookRepository
	statusChanges statusChangeRepository
	store         paymentStore

	gateways    *gateway.Registry
	publisher   events.Publisher
	paymentsCfg config.PaymentsConfig
	webhooksCfg config.WebhooksConfig
	clock       clockz.Clock
	logger      logrus.FieldLogger

	orderLocks       *lock.Keyed
	transactionLocks *lock.Keyed
}

func NewPaymentService(
	repos PaymentRepositories,
	gateways *gateway.Registry,
	publisher events.Publisher,
	paymentsCfg config.PaymentsConfig,
	webhooksCfg config.WebhooksConfig,
	clock clockz.Clock,
	logger logrus.FieldLogger,
) *PaymentService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if clock == nil {
		clock = clockz.RealClock
	}

	return &PaymentService{
		orders:           repos.Orders,
		transactions:     repos.Transactions,
		refunds:          repos.Refunds,
		webhooks:         repos.Webhooks,
		statusChanges:    repos.StatusChanges,
		store:            repos.Store,
		gateways:         gateways,
		publisher:        publisher,
		paymentsCfg:      paymentsCfg,
		webhooksCfg:      webhooksCfg,
		clock:            clock,
		logger:           logger,
		orderLocks:       lock.NewKeyed(),
		transactionLocks: lock.NewKeyed(),
	}
}

func (s *PaymentService) now() time.Time {
	return s.clock.Now().UTC()
}

// recordStatusChange appends to the audit trail and publishes the matching
// domain event. Failures are logged and never fail the operation.
func (s *PaymentService) recordStatusChange(ctx context.Context, aggregateType, aggregateID, eventType string, oldStatus *string, newStatus string, payload interface{}) {
	now := s.now()
	change := &entity.StatusChange{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		CreatedAt:     now,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			encoded := string(raw)
			change.PayloadJSON = &encoded
		}
	}
	if err := s.statusChanges.Create(ctx, change); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"aggregate_id": aggregateID,
			"event_type":   eventType,
		}).Warn("status change not recorded")
	}

	event, err := events.New(eventType, aggregateType, aggregateID, payload, now)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("event not published")
	}
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrRefundNotFound),
		errors.Is(err, repository.ErrWebhookNotFound),
		errors.Is(err, repository.ErrPluginNotFound),
		errors.Is(err, repository.ErrConnectionNotFound):
		return ErrNotFound
	default:
		return err
	}
}

func statusPtr[T ~string](status T) *string {
	value := string(status)
	return &value
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
