package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

func newTestAttempt(learnerID string, createdAt time.Time) *entities.Attempt {
	result := entities.EvaluationResult{
		Words: []entities.WordScore{{Index: 0, Spoken: "cat", Expected: "cat", Ratio: 1, Correct: true}},
		Score: 1,
	}
	a := entities.NewAttempt(learnerID, "cat", "en-US", "cat", entities.AudioClip{}, result)
	a.CreatedAt = createdAt
	return a
}

func TestMemoryAttemptRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryAttemptRepository()
	ctx := context.Background()

	attempt := newTestAttempt("learner-1", time.Now())
	if err := repo.Create(ctx, attempt); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.GetByID(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Reference != "cat" {
		t.Errorf("Expected reference 'cat', got '%s'", got.Reference)
	}

	// returned copies do not alias stored state
	got.Words[0].Spoken = "dog"
	again, _ := repo.GetByID(ctx, attempt.ID)
	if again.Words[0].Spoken != "cat" {
		t.Error("Expected stored attempt to be unaffected by caller mutation")
	}

	if err := repo.Create(ctx, attempt); err == nil {
		t.Error("Expected error for duplicate ID")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrAttemptNotFound) {
		t.Errorf("Expected ErrAttemptNotFound, got %v", err)
	}
}

func TestMemoryAttemptRepository_CreateValidates(t *testing.T) {
	repo := NewMemoryAttemptRepository()

	if err := repo.Create(context.Background(), nil); err == nil {
		t.Error("Expected error for nil attempt")
	}

	invalid := newTestAttempt("", time.Now())
	if err := repo.Create(context.Background(), invalid); err == nil {
		t.Error("Expected error for attempt without learner")
	}
}

func TestMemoryAttemptRepository_ListByLearner(t *testing.T) {
	repo := NewMemoryAttemptRepository()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		repo.Create(ctx, newTestAttempt("learner-1", now.Add(time.Duration(i)*time.Minute)))
	}
	repo.Create(ctx, newTestAttempt("learner-2", now))

	list, err := repo.ListByLearner(ctx, "learner-1", 2)
	if err != nil {
		t.Fatalf("ListByLearner failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(list))
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Error("Expected newest attempt first")
	}

	empty, err := repo.ListByLearner(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("ListByLearner failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no attempts, got %d", len(empty))
	}
}

func TestMemoryAttemptRepository_DeleteOlderThan(t *testing.T) {
	repo := NewMemoryAttemptRepository()
	ctx := context.Background()
	now := time.Now()

	old := newTestAttempt("learner-1", now.Add(-48*time.Hour))
	recent := newTestAttempt("learner-1", now)
	repo.Create(ctx, old)
	repo.Create(ctx, recent)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted attempt, got %d", deleted)
	}

	list, _ := repo.ListByLearner(ctx, "learner-1", 0)
	if len(list) != 1 || list[0].ID != recent.ID {
		t.Errorf("Expected only the recent attempt to remain, got %d", len(list))
	}
}
