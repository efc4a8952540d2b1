package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/cron"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/platform"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	job := flag.String("job", "", "with -once, run only this job")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := platform.Bootstrap(ctx, "cron-worker", platform.Needs{Redis: true})
	if err != nil {
		platform.Fatal(ctx, nil, "cron worker bootstrap failed", err)
	}
	err = schedule(ctx, rt, *once, *job)
	rt.Close(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		platform.Fatal(ctx, rt.Logger, "cron worker stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "cron worker shut down")
}

func schedule(ctx context.Context, rt *platform.Runtime, once bool, job string) error {
	services, err := platform.NewServices(platform.Params{
		Config:     rt.Config,
		DB:         rt.DB,
		Logger:     rt.Logger,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("build ledger services: %w", err)
	}

	registry, err := buildRegistry(rt.Config, rt.Logger, rt.DB, services)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey("cron-worker"), 0)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: rt.Config.Payout.RunInterval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	ctx = rt.LogContext(ctx, map[string]any{"jobs": registry.Names()})
	if once {
		rt.Logger.Info(ctx, "running single cron cycle")
		return service.RunOnce(ctx, job)
	}
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Logger.Info(ctx, "cron worker scheduling")
	return service.Run(ctx)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *platform.Services) (*cron.Registry, error) {
	payoutJob, err := cron.NewPayoutRunJob(cron.PayoutRunJobParams{
		Logger:            logg,
		Payouts:           services.Payouts,
		MinThresholdCents: cfg.Payout.MinThresholdCents,
		Fraction:          cfg.Payout.DefaultFraction,
		BatchLimit:        cfg.Payout.BatchLimit,
	})
	if err != nil {
		return nil, err
	}
	reconciliationJob, err := cron.NewReconciliationJob(cron.ReconciliationJobParams{
		Logger:     logg,
		Reconciler: services.Reconciliation,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Outbox:           services.OutboxRepo,
		DeadLetters:      services.DeadLetters,
		OutboxDays:       cfg.Outbox.RetentionDays,
		DeadLetterDays:   cfg.Outbox.DLQRetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(payoutJob, reconciliationJob, retentionJob)
}
