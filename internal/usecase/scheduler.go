package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"MedArticles/internal/domain"
	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// Scheduler binds a timing driver to since-last-update runs.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	last    *domain.RunSummary
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		driver:   driver,
		pipeline: pipeline,
		logger:   logging.OrDiscard(logger).With("component", "schedule"),
	}
}

// Start registers the since-last-update run with the driver. A trigger that
// fires while a run is still active is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Trigger(ctx, trigger)
	})
}

// Trigger executes one run unless another is in progress; ok reports whether it ran.
func (s *Scheduler) Trigger(ctx context.Context, at time.Time) (domain.RunSummary, bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("previous run still active, skipping trigger", "at", at)
		return domain.RunSummary{}, false
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduled run triggered", "at", at)
	summary := s.pipeline.RunSinceLastUpdate(ctx)

	s.mu.Lock()
	s.running = false
	s.last = &summary
	s.mu.Unlock()
	return summary, true
}

// Last returns the summary of the most recent scheduled run.
func (s *Scheduler) Last() (domain.RunSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return domain.RunSummary{}, false
	}
	return *s.last, true
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
