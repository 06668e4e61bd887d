package repositories

import (
	"context"

	"github.com/satriahrh/lafal/domain"
)

// EventPublisher announces finished evaluations to other services
type EventPublisher interface {
	PublishEvaluation(ctx context.Context, event domain.EvaluationEvent) error
	Close() error
}
