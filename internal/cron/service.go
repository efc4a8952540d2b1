package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval, in registration
// order, while holding one cluster-wide lock. A failing or panicking job
// does not stop the jobs after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one locked cycle, or only the named job when name is set.
func (s *Service) RunOnce(ctx context.Context, name string) error {
	if name == "" {
		return s.runCycle(ctx)
	}
	job := s.registry.Find(name)
	if job == nil {
		return fmt.Errorf("unknown cron job %q (have %v)", name, s.registry.Names())
	}
	return s.withLock(ctx, func(ctx context.Context) error { return s.runJob(ctx, job) })
}

func (s *Service) runCycle(ctx context.Context) error {
	return s.withLock(ctx, func(ctx context.Context) error {
		var errs error
		for _, job := range s.registry.Jobs() {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			errs = multierr.Append(errs, s.runJob(ctx, job))
		}
		return errs
	})
}

// withLock skips fn without error when another instance holds the lock.
// Locks with a TTL are refreshed while fn runs; losing the lock cancels the
// context passed to fn.
func (s *Service) withLock(ctx context.Context, fn func(context.Context) error) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	heldCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if r, ok := s.lock.(refresher); ok {
		stop := s.heartbeat(heldCtx, r, cancel)
		defer stop()
	}

	err = fn(heldCtx)
	if cause := context.Cause(heldCtx); errors.Is(cause, errLockLost) {
		return multierr.Append(err, cause)
	}
	return err
}

var errLockLost = errors.New("cron lock lost")

// heartbeat refreshes r every third of its TTL until stop is called.
func (s *Service) heartbeat(ctx context.Context, r refresher, cancel context.CancelCauseFunc) (stop func()) {
	interval := r.TTL() / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := r.Refresh(ctx)
			if err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron lock refresh failed")
				continue
			}
			if !held {
				s.logg.Warn(ctx, "cron lock lost; cancelling cycle")
				cancel(errLockLost)
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	started := time.Now()
	s.logg.Info(jobCtx, "job start")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cron job %s panicked: %v", job.Name(), r)
		}
		s.metrics.Observe(job.Name(), started, err)
		jobCtx = s.logg.WithField(jobCtx, "duration_ms", time.Since(started).Milliseconds())
		if err != nil {
			s.logg.Error(jobCtx, "job failed", err)
			return
		}
		s.logg.Info(jobCtx, "job completed")
	}()

	return job.Run(jobCtx)
}
