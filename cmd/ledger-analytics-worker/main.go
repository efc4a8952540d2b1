package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/analytics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/platform"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/idempotency"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := platform.Bootstrap(ctx, "ledger-analytics-worker", platform.Needs{Redis: true, PubSub: true, BigQuery: true})
	if err != nil {
		platform.Fatal(ctx, nil, "ledger analytics worker bootstrap failed", err)
	}
	err = consume(ctx, rt)
	rt.Close(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		platform.Fatal(ctx, rt.Logger, "ledger analytics worker stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "ledger analytics worker shut down")
}

func consume(ctx context.Context, rt *platform.Runtime) error {
	subscription := rt.PubSub.AnalyticsSubscription()
	if subscription == nil {
		return errors.New("analytics subscription not configured")
	}

	guard, err := idempotency.NewGuard(rt.Redis, rt.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("create idempotency guard: %w", err)
	}

	consumer, err := analytics.NewConsumer(rt.BigQuery, rt.BigQuery.Table(), subscription, guard, rt.Logger)
	if err != nil {
		return fmt.Errorf("create analytics consumer: %w", err)
	}

	ctx = rt.LogContext(ctx, map[string]any{
		"subscription": rt.Config.PubSub.AnalyticsSubscription,
		"table":        rt.BigQuery.Table(),
	})
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Logger.Info(ctx, "ledger analytics worker consuming")
	return consumer.Run(ctx)
}
