package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"MedArticles/internal/logging"
	"MedArticles/internal/ports"
)

// ErrAlreadyRunning is returned by Start on a scheduler that has not been stopped.
var ErrAlreadyRunning = errors.New("scheduler already running")

// IntervalScheduler fires a job on a fixed interval. Ticks missed while a job
// is still running collapse into one.
type IntervalScheduler struct {
	interval   time.Duration
	location   *time.Location
	runOnStart bool
	logger     *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler. Trigger times are reported in loc.
func NewIntervalScheduler(interval time.Duration, loc *time.Location, runOnStart bool, logger *slog.Logger) *IntervalScheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &IntervalScheduler{
		interval:   interval,
		location:   loc,
		runOnStart: runOnStart,
		logger:     logging.OrDiscard(logger).With("component", "scheduler"),
	}
}

// Start launches the ticking goroutine and returns immediately.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler: nil job")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyRunning
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, job, s.stop, s.done)
	s.logger.Info("scheduler started", "interval", s.interval.String(), "run_on_start", s.runOnStart)
	return nil
}

func (s *IntervalScheduler) loop(ctx context.Context, job func(time.Time), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		job(time.Now().In(s.location))
	}
	for {
		select {
		case t := <-ticker.C:
			s.logger.Debug("tick", "at", t.In(s.location))
			job(t.In(s.location))
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

// Stop halts the goroutine and waits for an in-flight job, bounded by ctx.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
