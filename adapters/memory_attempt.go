package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

// MemoryAttemptRepository is an in-memory implementation of AttemptRepository.
// History is lost on restart.
type MemoryAttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]*entities.Attempt // id -> attempt
	learners map[string][]string          // learner_id -> attempt ids
}

var _ repositories.AttemptRepository = (*MemoryAttemptRepository)(nil)

// NewMemoryAttemptRepository creates a new in-memory attempt repository
func NewMemoryAttemptRepository() *MemoryAttemptRepository {
	return &MemoryAttemptRepository{
		attempts: make(map[string]*entities.Attempt),
		learners: make(map[string][]string),
	}
}

// Create implements AttemptRepository interface
func (m *MemoryAttemptRepository) Create(ctx context.Context, attempt *entities.Attempt) error {
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}
	if err := attempt.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if _, exists := m.attempts[attempt.ID]; exists {
		return errors.New("attempt with this ID already exists")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	m.attempts[attempt.ID] = copyAttempt(attempt)
	m.learners[attempt.LearnerID] = append(m.learners[attempt.LearnerID], attempt.ID)
	return nil
}

// GetByID implements AttemptRepository interface
func (m *MemoryAttemptRepository) GetByID(ctx context.Context, id string) (*entities.Attempt, error) {
	if id == "" {
		return nil, errors.New("attempt ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	attempt, exists := m.attempts[id]
	if !exists {
		return nil, repositories.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

// ListByLearner implements AttemptRepository interface
func (m *MemoryAttemptRepository) ListByLearner(ctx context.Context, learnerID string, limit int) ([]*entities.Attempt, error) {
	if learnerID == "" {
		return nil, errors.New("learner ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.learners[learnerID]
	result := make([]*entities.Attempt, 0, len(ids))
	for _, id := range ids {
		result = append(result, copyAttempt(m.attempts[id]))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteOlderThan implements AttemptRepository interface
func (m *MemoryAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, attempt := range m.attempts {
		if !attempt.CreatedAt.Before(cutoff) {
			continue
		}
		delete(m.attempts, id)
		deleted++

		ids := m.learners[attempt.LearnerID]
		for i, learnerAttempt := range ids {
			if learnerAttempt == id {
				m.learners[attempt.LearnerID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(m.learners[attempt.LearnerID]) == 0 {
			delete(m.learners, attempt.LearnerID)
		}
	}
	return deleted, nil
}

// copyAttempt prevents callers from mutating stored state
func copyAttempt(a *entities.Attempt) *entities.Attempt {
	c := *a
	c.Words = append([]entities.WordScore(nil), a.Words...)
	return &c
}
