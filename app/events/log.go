package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher writes events to the logger. It is used when no broker is
// configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event *Event) error {
	p.logger.WithFields(logrus.Fields{
		"event_id":       event.ID,
		"type":           event.Type,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
	}).Info("domain event")
	return nil
}

// Multi fans an event out to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event *Event) error {
	var firstErr error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
