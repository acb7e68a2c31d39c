package entity

import "time"

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

type Refund struct {
	ID            string
	OrderID       string
	TransactionID string

	AmountMinor int64
	Currency    string

	Reason      string
	RequestedBy string
	Status      RefundStatus

	GatewayRefundID *string
	FailureReason   *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// Reserved reports whether the refund still counts against the refundable
// balance of its transaction.
func (r *Refund) Reserved() bool {
	return r.Status != RefundStatusFailed
}
