package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
	"github.com/vibast-solutions/ms-go-integrations/app/events"
	"github.com/vibast-solutions/ms-go-integrations/app/money"
	"github.com/vibast-solutions/ms-go-integrations/app/repository"
	"github.com/vibast-solutions/ms-go-integrations/app/types"
	"github.com/vibast-solutions/ms-go-integrations/config"
)

type createOrderRequest interface {
	GetUserId() string
	GetMerchantId() string
	GetAmount() float64
	GetCurrency() string
	GetDescription() string
	GetItems() []types.OrderItemRequest
	GetMetadata() map[string]string
}

type listOrdersRequest interface {
	GetUserId() string
	GetPage() int32
	GetLimit() int32
}

type listTransactionsRequest interface {
	GetUserId() string
	GetStatus() string
	GetPage() int32
	GetLimit() int32
}

// OrderView is an order together with its status as of CheckedAt, with
// expiry applied.
type OrderView struct {
	Order     *entity.Order
	Status    entity.OrderStatus
	CheckedAt time.Time
}

type OrderPage struct {
	Items []*OrderView
	Total int64
	Page  int32
	Limit int32
}

type TransactionPage struct {
	Items []*entity.Transaction
	Total int64
	Page  int32
	Limit int32
}

func (s *PaymentService) CreateOrder(ctx context.Context, req createOrderRequest) (*OrderView, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}

	currency, ok := money.ParseCurrency(req.GetCurrency())
	if !ok || !s.paymentsCfg.SupportsCurrency(string(currency)) {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrValidation, req.GetCurrency())
	}

	amount := req.GetAmount()
	if math.IsNaN(amount) || amount < s.paymentsCfg.MinAmount || amount > s.paymentsCfg.MaxAmount {
		return nil, fmt.Errorf("%w: amount must be between %.2f and %.2f", ErrValidation, s.paymentsCfg.MinAmount, s.paymentsCfg.MaxAmount)
	}
	amountMinor := money.FromMajor(amount, currency)
	if !representable(amount, amountMinor, currency) {
		return nil, fmt.Errorf("%w: amount has more decimals than %s allows", ErrValidation, currency)
	}

	items, err := buildOrderItems(req.GetItems(), currency, amountMinor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &entity.Order{
		ID:          "order_" + ulid.Make().String(),
		UserID:      userID,
		MerchantID:  normalizeOptionalString(req.GetMerchantId()),
		AmountMinor: amountMinor,
		Currency:    string(currency),
		Status:      entity.OrderStatusPending,
		Description: strings.TrimSpace(req.GetDescription()),
		Items:       items,
		Metadata:    cloneMetadata(req.GetMetadata()),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.paymentsCfg.OrderTimeout),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, events.OrderCreated, nil, string(order.Status), map[string]interface{}{
		"userId":      order.UserID,
		"amountMinor": order.AmountMinor,
		"currency":    order.Currency,
	})

	return &OrderView{Order: order, Status: order.Status, CheckedAt: now}, nil
}

func (s *PaymentService) GetOrderStatus(ctx context.Context, orderID string) (*OrderView, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &OrderView{Order: order, Status: order.EffectiveStatus(now), CheckedAt: now}, nil
}

func (s *PaymentService) CancelOrder(ctx context.Context, orderID string) (*OrderView, error) {
	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status := order.EffectiveStatus(now)
	if status == entity.OrderStatusExpired {
		return nil, fmt.Errorf("%w: order %s expired at %s", ErrInvalidState, order.ID, order.ExpiresAt.Format(time.RFC3339))
	}
	if !status.CanTransitionTo(entity.OrderStatusCancelled) {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.ID, status)
	}

	oldStatus := order.Status
	order.Status = entity.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, mapRepositoryError(err)
	}

	s.recordStatusChange(ctx, entity.AggregateOrder, order.ID, events.OrderCancelled, statusPtr(oldStatus), string(order.Status), nil)

	return &OrderView{Order: order, Status: order.Status, CheckedAt: now}, nil
}

// ListOrders pages through the orders of a user, newest first. Each view
// carries the status with expiry applied.
func (s *PaymentService) ListOrders(ctx context.Context, req listOrdersRequest) (*OrderPage, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	page, limit := pageBounds(req.GetPage(), req.GetLimit())

	filter := repository.OrderFilter{
		UserID: userID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.orders.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]*OrderView, 0, len(orders))
	for _, order := range orders {
		items = append(items, &OrderView{Order: order, Status: order.EffectiveStatus(now), CheckedAt: now})
	}
	return &OrderPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, req listTransactionsRequest) (*TransactionPage, error) {
	userID := strings.TrimSpace(req.GetUserId())
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}

	status := strings.TrimSpace(req.GetStatus())
	switch entity.TransactionStatus(status) {
	case "", entity.TransactionStatusAuthorized, entity.TransactionStatusCaptured,
		entity.TransactionStatusSettled, entity.TransactionStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown transaction status %q", ErrValidation, status)
	}

	page, limit := pageBounds(req.GetPage(), req.GetLimit())

	filter := repository.TransactionFilter{
		UserID: userID,
		Status: status,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	items, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.transactions.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &TransactionPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// ListPaymentMethods returns the enabled payment methods.
func (s *PaymentService) ListPaymentMethods() []config.MethodConfig {
	out := make([]config.MethodConfig, 0, len(s.paymentsCfg.Methods))
	for _, m := range s.paymentsCfg.Methods {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

func (s *PaymentService) findOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}

func pageBounds(page, limit int32) (int32, int32) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if page <= 0 {
		page = 1
	}
	return page, limit
}

func buildOrderItems(requested []types.OrderItemRequest, currency money.Currency, amountMinor int64) ([]entity.OrderItem, error) {
	if len(requested) == 0 {
		return []entity.OrderItem{}, nil
	}

	items := make([]entity.OrderItem, 0, len(requested))
	var sum int64
	for i, item := range requested {
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("%w: items[%d].name is required", ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: items[%d].quantity must be positive", ErrValidation, i)
		}
		unit := money.FromMajor(item.UnitPrice, currency)
		total := money.FromMajor(item.TotalPrice, currency)
		if unit < 0 || total != unit*item.Quantity {
			return nil, fmt.Errorf("%w: items[%d].totalPrice must equal quantity * unitPrice", ErrValidation, i)
		}

		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = fmt.Sprintf("item_%d", i+1)
		}
		items = append(items, entity.OrderItem{
			ID:              id,
			Name:            strings.TrimSpace(item.Name),
			Description:     strings.TrimSpace(item.Description),
			Quantity:        item.Quantity,
			UnitPriceMinor:  unit,
			TotalPriceMinor: total,
			Category:        strings.TrimSpace(item.Category),
			SKU:             strings.TrimSpace(item.SKU),
		})
		sum += total
	}

	if sum != amountMinor {
		return nil, fmt.Errorf("%w: items total %s does not match amount %s", ErrValidation,
			money.Format(sum, currency), money.Format(amountMinor, currency))
	}
	return items, nil
}

func representable(amount float64, amountMinor int64, currency money.Currency) bool {
	return math.Abs(money.ToMajor(amountMinor, currency)-amount) < 1e-9
}
