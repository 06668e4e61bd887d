// Package retention deletes evaluation history older than the configured window.
package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lafal/domain/repositories"
	"github.com/satriahrh/lafal/internal/metrics"
)

// Pruner handles background deletion of old attempts
type Pruner struct {
	attempts  repositories.AttemptRepository
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewPruner creates a pruner. A zero retention disables pruning.
func NewPruner(attempts repositories.AttemptRepository, retention, interval time.Duration, logger *zap.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		attempts:  attempts,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins the background pruning loop. It runs at most once and not after Stop.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if p.retention <= 0 {
		close(p.done)
		p.logger.Info("History retention disabled")
		return
	}
	go p.loop()
	p.logger.Info("History pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval))
}

// Stop gracefully stops the pruner and waits for a running pass to finish
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.started {
		p.started = true
		close(p.done)
	}
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	<-p.done
	p.logger.Info("History pruner stopped")
}

func (p *Pruner) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(context.Background())
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.RunOnce(context.Background())
		}
	}
}

// RunOnce deletes every attempt created before now minus the retention window
func (p *Pruner) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := p.now().Add(-p.retention)
	deleted, err := p.attempts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to prune attempts", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}

	metrics.AttemptsPruned.Add(float64(deleted))
	if deleted > 0 {
		p.logger.Info("Pruned old attempts", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted
}
