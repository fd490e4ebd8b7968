package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
)

// Scheduler triggers pipeline runs on a fixed interval. A run already in
// progress (here or on another instance holding the lock) is skipped, not
// queued.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	logger   ectologger.Logger
}

// NewScheduler creates a new run scheduler
func NewScheduler(pipeline *Pipeline, interval time.Duration, logger ectologger.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks, running the pipeline every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"interval": s.interval.String(),
	}).Info("Pipeline scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.WithContext(ctx).Info("Pipeline scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.pipeline.Run(ctx); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					s.logger.WithContext(ctx).Debug("Skipping scheduled run, another run in progress")
					continue
				}
				s.logger.WithContext(ctx).WithError(err).Error("Scheduled pipeline run failed")
			}
		}
	}
}
