package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/lafal/domain/entities"
)

// ErrAttemptNotFound is returned when no attempt matches the lookup
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository defines data access methods for evaluation history
type AttemptRepository interface {
	Create(ctx context.Context, attempt *entities.Attempt) error
	GetByID(ctx context.Context, id string) (*entities.Attempt, error)
	// ListByLearner returns the newest attempts first
	ListByLearner(ctx context.Context, learnerID string, limit int) ([]*entities.Attempt, error)
	// DeleteOlderThan removes attempts created before cutoff and reports how many
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
