package entity

import "time"

const (
	AggregateOrder       = "order"
	AggregateTransaction = "transaction"
	AggregateRefund      = "refund"
	AggregatePlugin      = "plugin"
	AggregateWebhook     = "webhook"
	AggregateConnection  = "connection"
)

// StatusChange is one row of the audit trail kept for every state transition.
type StatusChange struct {
	ID uint64

	AggregateType string
	AggregateID   string

	EventType string

	OldStatus *string
	NewStatus string

	PayloadJSON *string

	CreatedAt time.Time
}
