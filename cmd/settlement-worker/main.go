package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/platform"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/settlement"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/idempotency"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := platform.Bootstrap(ctx, "settlement-worker", platform.Needs{Redis: true, PubSub: true})
	if err != nil {
		platform.Fatal(ctx, nil, "settlement worker bootstrap failed", err)
	}
	err = consume(ctx, rt)
	rt.Close(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		platform.Fatal(ctx, rt.Logger, "settlement worker stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "settlement worker shut down")
}

func consume(ctx context.Context, rt *platform.Runtime) error {
	services, err := platform.NewServices(platform.Params{
		Config:     rt.Config,
		DB:         rt.DB,
		Logger:     rt.Logger,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("build ledger services: %w", err)
	}

	guard, err := idempotency.NewGuard(rt.Redis, rt.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("create idempotency guard: %w", err)
	}

	consumer, err := settlement.NewConsumer(services.Settlement, rt.PubSub.OrdersSubscription(), guard, rt.Logger)
	if err != nil {
		return fmt.Errorf("create settlement consumer: %w", err)
	}

	ctx = rt.LogContext(ctx, map[string]any{"subscription": rt.Config.PubSub.OrdersSubscription})
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Logger.Info(ctx, "settlement worker consuming")
	return consumer.Run(ctx)
}
