package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/roha-backend/pkg/logger"
	"github.com/angelmondragon/roha-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

// Recorder receives one observation per job execution.
type Recorder interface {
	ObserveRun(job, result string, took time.Duration)
	IncSkippedCycle()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, string, time.Duration) {}
func (nopRecorder) IncSkippedCycle()                         {}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  Recorder
	Interval time.Duration
	// JobTimeout caps each job; zero means ten minutes.
	JobTimeout time.Duration
}

// Service runs the retention and stale order jobs on a fixed interval. Only
// the replica holding the lock runs a cycle.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    Recorder
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.registry == nil {
		s.registry, _ = NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run fires a cycle immediately and then on every tick until ctx ends.
// Cycle failures are logged and never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single locked cycle and returns the joined job errors.
func (s *Service) RunOnce(ctx context.Context) error {
	jobErrs, err := s.cycle(ctx)
	if err != nil {
		return err
	}
	return jobErrs
}

// RunJob executes one named job outside the schedule and without the lock.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron job %q", name)
	}
	return s.execute(ctx, job)
}

// cycle returns the joined job failures separately from lock errors so the
// loop can tell "nothing ran" from "some jobs failed".
func (s *Service) cycle(ctx context.Context) (jobErrs error, err error) {
	lease, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	if lease == nil {
		s.metrics.IncSkippedCycle()
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil, nil
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	ctx = s.logg.WithField(ctx, "cycle_id", uuid.NewString())
	jobs := s.registry.Jobs()
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "cron cycle starting")
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := s.execute(ctx, job); err != nil {
			jobErrs = multierr.Append(jobErrs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}

	failed := len(multierr.Errors(jobErrs))
	doneCtx := s.logg.WithField(ctx, "jobs_failed", failed)
	if failed > 0 {
		s.logg.Warn(doneCtx, "cron cycle finished with failures")
	} else {
		s.logg.Info(doneCtx, "cron cycle finished")
	}
	return jobErrs, nil
}

func (s *Service) execute(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(runCtx)
	took := time.Since(start)

	result := metrics.JobSucceeded
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil && ctx.Err() == nil:
		result = metrics.JobTimedOut
		err = fmt.Errorf("timed out after %s: %w", s.jobTimeout, err)
	default:
		result = metrics.JobFailed
	}
	s.metrics.ObserveRun(job.Name(), result, took)

	logCtx := s.logg.WithFields(ctx, map[string]any{"duration_ms": took.Milliseconds(), "result": result})
	if err != nil {
		s.logg.Error(logCtx, "cron job failed", err)
		return err
	}
	s.logg.Info(logCtx, "cron job done")
	return nil
}
