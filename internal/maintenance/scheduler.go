package maintenance

import (
	"context"
	"time"
	"turn-service/pkg/logger"

	"go.uber.org/zap"
)

// Sweeper is the part of Service the scheduler needs
type Sweeper interface {
	Sweep(ctx context.Context, retentionDays int) (SweepResult, error)
}

// Scheduler runs periodic retention sweeps.
type Scheduler struct {
	sweeper       Sweeper
	retentionDays int
	interval      time.Duration
	runOnStart    bool
}

// NewScheduler creates a scheduler. An interval of zero or less disables
// the periodic sweep; runOnStart still applies.
func NewScheduler(sweeper Sweeper, retentionDays int, interval time.Duration, runOnStart bool) *Scheduler {
	return &Scheduler{
		sweeper:       sweeper,
		retentionDays: retentionDays,
		interval:      interval,
		runOnStart:    runOnStart,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	if s.runOnStart {
		s.sweepOnce(ctx)
	}
	if s.interval <= 0 {
		log.Info("Periodic sweep disabled")
		<-ctx.Done()
		return
	}

	log.Info("Sweep scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("retention_days", s.retentionDays))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Sweep scheduler stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Sweep logs its own result; failures are retried on the next tick
	_, _ = s.sweeper.Sweep(ctx, s.retentionDays)
}
