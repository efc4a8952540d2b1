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
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := platform.Bootstrap(ctx, "outbox-publisher", platform.Needs{PubSub: true})
	if err != nil {
		platform.Fatal(ctx, nil, "outbox publisher bootstrap failed", err)
	}
	err = publish(ctx, rt)
	rt.Close(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		platform.Fatal(ctx, rt.Logger, "outbox publisher stopped unexpectedly", err)
	}
	rt.Logger.Info(ctx, "outbox publisher shut down")
}

func publish(ctx context.Context, rt *platform.Runtime) error {
	eventRegistry, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}

	gdb := rt.DB.DB()
	service, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        rt.Logger,
		DB:            rt.DB,
		PubSub:        rt.PubSub,
		Repository:    outbox.NewRepository(gdb),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(gdb),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	ctx = rt.LogContext(ctx, map[string]any{"topic": rt.Config.PubSub.LedgerTopic})
	rt.ServeMetrics(ctx, prometheus.DefaultGatherer)
	rt.Logger.Info(ctx, "outbox publisher draining")
	return service.Run(ctx)
}
