// Package events publishes evaluation results to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain"
	"github.com/satriahrh/lafal/domain/repositories"
)

// publisher is the part of *nats.Conn used for publishing
type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher emits EvaluationEvents as JSON on a NATS subject
type NATSPublisher struct {
	conn    publisher
	subject string
	logger  *zap.Logger
}

var _ repositories.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS servers at url
func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("lafal"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishEvaluation implements repositories.EventPublisher
func (p *NATSPublisher) PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal evaluation event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish evaluation event: %w", err)
	}

	p.logger.Debug("Published evaluation event",
		zap.String("subject", p.subject),
		zap.String("attemptID", event.AttemptID))
	return nil
}

// Close flushes pending events and closes the connection
func (p *NATSPublisher) Close() error {
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.logger.Warn("Failed to flush NATS connection", zap.Error(err))
	}
	return p.conn.Drain()
}

// NoopPublisher drops every event. Used when no bus is configured.
type NoopPublisher struct{}

var _ repositories.EventPublisher = NoopPublisher{}

func (NoopPublisher) PublishEvaluation(context.Context, domain.EvaluationEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
