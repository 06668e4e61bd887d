package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/lafal/adapters"
	"github.com/satriahrh/lafal/domain/entities"
)

func attemptAt(learnerID string, createdAt time.Time) *entities.Attempt {
	return &entities.Attempt{
		LearnerID: learnerID,
		Reference: "this is india",
		Score:     0.5,
		CreatedAt: createdAt,
	}
}

func TestPruner_RunOnce(t *testing.T) {
	repo := adapters.NewMemoryAttemptRepository()
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{time.Hour, 48 * time.Hour, 72 * time.Hour} {
		if err := repo.Create(ctx, attemptAt("learner-1", now.Add(-age))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	p := NewPruner(repo, 24*time.Hour, time.Hour, zaptest.NewLogger(t))
	p.now = func() time.Time { return now }

	if deleted := p.RunOnce(ctx); deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	left, _ := repo.ListByLearner(ctx, "learner-1", 10)
	if len(left) != 1 {
		t.Errorf("Expected 1 attempt left, got %d", len(left))
	}
}

type failingRepo struct {
	*adapters.MemoryAttemptRepository
	calls atomic.Int32
}

func (f *failingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.calls.Add(1)
	return 0, errors.New("database unavailable")
}

func TestPruner_RunOnceError(t *testing.T) {
	repo := &failingRepo{MemoryAttemptRepository: adapters.NewMemoryAttemptRepository()}
	p := NewPruner(repo, time.Hour, time.Hour, zaptest.NewLogger(t))

	if deleted := p.RunOnce(context.Background()); deleted != 0 {
		t.Errorf("Expected 0 deleted on error, got %d", deleted)
	}
}

func TestPruner_StartStop(t *testing.T) {
	repo := &failingRepo{MemoryAttemptRepository: adapters.NewMemoryAttemptRepository()}
	p := NewPruner(repo, time.Hour, time.Hour, zaptest.NewLogger(t))

	p.Start()
	p.Stop()
	p.Stop()

	if repo.calls.Load() != 1 {
		t.Errorf("Expected one pass at start, got %d", repo.calls.Load())
	}
}

func TestPruner_Disabled(t *testing.T) {
	repo := &failingRepo{MemoryAttemptRepository: adapters.NewMemoryAttemptRepository()}
	p := NewPruner(repo, 0, time.Hour, zaptest.NewLogger(t))

	p.Start()
	p.Stop()

	if repo.calls.Load() != 0 {
		t.Errorf("Expected no pruning when disabled, got %d calls", repo.calls.Load())
	}
}

func TestPruner_StopWithoutStart(t *testing.T) {
	repo := &failingRepo{MemoryAttemptRepository: adapters.NewMemoryAttemptRepository()}
	p := NewPruner(repo, time.Hour, time.Hour, zaptest.NewLogger(t))

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Stop to return when the pruner never started")
	}

	p.Start()
	p.Stop()
	if repo.calls.Load() != 0 {
		t.Errorf("Expected no pruning after Stop, got %d calls", repo.calls.Load())
	}
}
