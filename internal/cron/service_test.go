package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

func mustRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

type panicJob struct{}

func (panicJob) Name() string              { return "panicky" }
func (panicJob) Run(context.Context) error { panic("nil vendor") }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry := mustRegistry(t, &testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.runCycle(ctx); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected cycle to report the failed job, got %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "payout-run"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}

func TestServiceRunOnceNamedJob(t *testing.T) {
	payoutRun := &testJob{name: "payout-run", err: errors.New("rail down")}
	reconcile := &testJob{name: "ledger-reconciliation"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: mustRegistry(t, payoutRun, reconcile),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunOnce(context.Background(), "ledger-reconciliation"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if reconcile.runs != 1 || payoutRun.runs != 0 {
		t.Fatalf("expected only reconciliation to run, got payout=%d reconcile=%d", payoutRun.runs, reconcile.runs)
	}
	if err := service.RunOnce(context.Background(), "payout-run"); err == nil {
		t.Fatal("expected job error to surface")
	}
	if err := service.RunOnce(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown job error")
	}
	if lock.acquired {
		t.Fatal("expected lock to be released")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func TestServiceRecoversPanickingJob(t *testing.T) {
	after := &testJob{name: "ledger-reconciliation"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: mustRegistry(t, panicJob{}, after),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.RunOnce(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
	if after.runs != 1 {
		t.Fatalf("job after the panic should still run")
	}
	if lock.acquired {
		t.Fatal("expected lock to be released")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "payout-run"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: mustRegistry(t, job),
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// losingLock reports the lock gone on the first refresh.
type losingLock struct {
	fakeLock
	refreshes int
}

func (l *losingLock) TTL() time.Duration { return 30 * time.Millisecond }

func (l *losingLock) Refresh(context.Context) (bool, error) {
	l.refreshes++
	return false, nil
}

// blockingJob waits until its context ends.
type blockingJob struct{}

func (blockingJob) Name() string { return "reconciliation" }

func (blockingJob) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("job was not cancelled")
	}
}

func TestServiceCancelsCycleWhenLockIsLost(t *testing.T) {
	lock := &losingLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: mustRegistry(t, blockingJob{}),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	err = service.RunOnce(context.Background(), "")
	if !errors.Is(err, errLockLost) {
		t.Fatalf("expected errLockLost, got %v", err)
	}
	if lock.refreshes == 0 {
		t.Fatal("expected the lock to be refreshed")
	}
}
