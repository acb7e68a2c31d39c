package entity

import "time"

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusFailed            OrderStatus = "failed"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusExpired           OrderStatus = "expired"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
	OrderStatusRefunded          OrderStatus = "refunded"
)

// Expired is never persisted; it is derived from ExpiresAt when read.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:           {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:        {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:         {OrderStatusPartiallyRefunded, OrderStatusRefunded},
	OrderStatusPartiallyRefunded: {OrderStatusPartiallyRefunded, OrderStatusRefunded},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Quantity        int64  `json:"quantity"`
	UnitPriceMinor  int64  `json:"unitPriceMinor"`
	TotalPriceMinor int64  `json:"totalPriceMinor"`
	Category        string `json:"category,omitempty"`
	SKU             string `json:"sku,omitempty"`
}

type Order struct {
	ID         string
	UserID     string
	MerchantID *string

	AmountMinor int64
	Currency    string

	Status      OrderStatus
	Description string
	Items       []OrderItem

	PaymentMethod *string
	TransactionID *string
	FailureReason *string

	Metadata map[string]string

	Revision int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// EffectiveStatus evaluates expiry at read time: a pending order whose
// expiry instant has passed is reported as expired.
func (o *Order) EffectiveStatus(now time.Time) OrderStatus {
	if o.Status == OrderStatusPending && now.After(o.ExpiresAt) {
		return OrderStatusExpired
	}
	return o.Status
}
