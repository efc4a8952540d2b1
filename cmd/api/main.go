package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/routes"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/platform"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/instance"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := platform.Bootstrap(ctx, "api", platform.Needs{Redis: true})
	if err != nil {
		platform.Fatal(ctx, nil, "api bootstrap failed", err)
	}
	err = serve(ctx, rt)
	rt.Close(context.Background())
	if err != nil {
		platform.Fatal(ctx, rt.Logger, "api server stopped unexpectedly", err)
	}
}

func serve(ctx context.Context, rt *platform.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	services, err := platform.NewServices(platform.Params{
		Config:     cfg,
		DB:         rt.DB,
		Logger:     logg,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("build ledger services: %w", err)
	}
	if cfg.Webhook.PayoutSigningSecret == "" {
		logg.Warn(ctx, "payout webhook secret not set; rail webhooks will be rejected")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := rt.LogContext(context.Background(), map[string]any{
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, rt.DB, rt.Redis, prometheus.DefaultGatherer, routes.Services{
			Balances:     services.Balances,
			Ledger:       services.Ledger,
			Payouts:      services.Payouts,
			BankAccounts: services.BankAccounts,
			Vendors:      services.Vendors,
			Review:       services.Review,
			Settlement:   services.Settlement,
			DeadLetters:  services.DeadLetters,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logg.Info(logCtx, "api server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
