package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	OrderCreated      = "order.created"
	OrderCancelled    = "order.cancelled"
	OrderPartRefunded = "order.partially_refunded"
	OrderRefunded     = "order.refunded"
	PaymentCompleted  = "payment.completed"
	PaymentPending    = "payment.pending"
	PaymentFailed     = "payment.failed"
	PaymentSettled    = "payment.settled"
	RefundRequested   = "refund.requested"
	RefundCompleted   = "refund.completed"
	RefundFailed      = "refund.failed"
	WebhookFailed     = "webhook.failed"
	PluginInstalled   = "plugin.installed"
	PluginConfigured  = "plugin.configured"
	PluginStarted     = "plugin.started"
	PluginStopped     = "plugin.stopped"
	PluginUninstalled = "plugin.uninstalled"
	PluginError       = "plugin.error"
	FunctionExecuted  = "function.executed"
	ConnectionOpened  = "connection.opened"
	ConnectionClosed  = "connection.closed"
)

// Event is the envelope published for every domain change.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Data          json.RawMessage `json:"data,omitempty"`
}

func New(eventType, aggregateType, aggregateID string, data interface{}, at time.Time) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}

	return &Event{
		ID:            "evt_" + ulid.Make().String(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at.UTC(),
		Data:          raw,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error {
	return nil
}
