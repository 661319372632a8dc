package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/timmy/sfbulk/internal/logger"
	"github.com/timmy/sfbulk/internal/repository"
)

const sweepBatchSize = 200

// Sweeper periodically refreshes ledger entries whose last known state is
// not terminal, so jobs started elsewhere or interrupted runs converge.
type Sweeper struct {
	cron     *cron.Cron
	runner   *JobRunner
	ledger   JobLedger
	schedule string

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper running on a cron schedule such as "@every 1m".
func NewSweeper(runner *JobRunner, ledger JobLedger, schedule string) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		runner:   runner,
		ledger:   ledger,
		schedule: schedule,
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx := logger.SetComponent(context.Background(), "sweeper")
		if _, err := s.SweepOnce(ctx); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Ledger sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	logger.CtxInfo(context.Background(), "Ledger sweeper started with schedule %s", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce refreshes every active ledger entry and returns how many were
// refreshed. Overlapping sweeps are skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	recs, err := s.ledger.List(ctx, repository.JobFilter{Active: true}, sweepBatchSize, 0)
	if err != nil {
		return 0, fmt.Errorf("list active jobs: %w", err)
	}

	refreshed := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, _, err := s.runner.Track(ctx, rec.Kind, rec.ID); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldJobID, rec.ID).Warn("Failed to refresh job")
			continue
		}
		refreshed++
	}

	if len(recs) > 0 {
		logger.With(logger.Fields{"active": len(recs)}).
			WithCount(refreshed).
			WithDuration(time.Since(start)).
			Info(ctx, "Ledger sweep finished")
	}
	return refreshed, nil
}
