package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Connect opens a NATS connection with reconnect logging.
func Connect(cfg NATSConfig, logger logrus.FieldLogger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	logger.WithField("url", conn.ConnectedUrl()).Info("NATS connection established")
	return conn, nil
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events on "<prefix>.<event type>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger logrus.FieldLogger
}

func NewNATSPublisher(conn natsConn, prefix string, logger logrus.FieldLogger) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		prefix: strings.Trim(prefix, "."),
		logger: logger,
	}
}

func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := p.Subject(event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"type":     event.Type,
		"subject":  subject,
	}).Debug("event published")
	return nil
}
