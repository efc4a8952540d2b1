package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/bigquery"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/migrate"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/pubsub"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/redis"
)

// Needs lists the optional backends a binary connects to. The database is
// always opened.
type Needs struct {
	Redis    bool
	PubSub   bool
	BigQuery bool
}

// Runtime is the bootstrapped process state shared by every binary.
type Runtime struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	PubSub   *pubsub.Client
	BigQuery *bigquery.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Bootstrap loads .env and config, builds the process logger for kind, then
// opens the requested backends. Dev migrations run once the database is up.
// On error every backend opened so far is closed.
func Bootstrap(ctx context.Context, kind string, needs Needs) (*Runtime, error) {
	early := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		early.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       cfg.App.LogLevel,
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}
	if err := rt.open(ctx, needs); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) open(ctx context.Context, needs Needs) error {
	dbClient, err := db.New(ctx, r.Config.DB, r.Logger)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	r.DB = dbClient
	r.closers = append(r.closers, namedCloser{"database", dbClient.Close})

	if err := migrate.MaybeRunDev(ctx, r.Config, r.Logger, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	if needs.Redis {
		redisClient, err := redis.New(ctx, r.Config.Redis, r.Logger)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		r.Redis = redisClient
		r.closers = append(r.closers, namedCloser{"redis", redisClient.Close})
	}

	if needs.PubSub {
		pubsubClient, err := pubsub.NewClient(ctx, r.Config.GCP, r.Config.PubSub, r.Logger)
		if err != nil {
			return fmt.Errorf("bootstrap pubsub: %w", err)
		}
		r.PubSub = pubsubClient
		r.closers = append(r.closers, namedCloser{"pubsub", pubsubClient.Close})
	}

	if needs.BigQuery {
		bqClient, err := bigquery.NewClient(ctx, r.Config.GCP, r.Config.BigQuery, r.Logger)
		if err != nil {
			return fmt.Errorf("bootstrap bigquery: %w", err)
		}
		r.BigQuery = bqClient
		r.closers = append(r.closers, namedCloser{"bigquery", bqClient.Close})
	}
	return nil
}

// Close releases backends in reverse open order and logs anything that failed.
func (r *Runtime) Close(ctx context.Context) {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	if errs != nil {
		r.Logger.Error(ctx, "error closing backends", errs)
	}
}

// Fatal logs err and exits. Deferred calls do not run, so callers Close first
// when backends are open.
func Fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{})
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

// LogContext tags ctx with the fields every binary logs at startup.
func (r *Runtime) LogContext(ctx context.Context, extra map[string]any) context.Context {
	fields := map[string]any{
		"env":          r.Config.App.Env,
		"service_kind": r.Config.Service.Kind,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return r.Logger.WithFields(ctx, fields)
}

// ServeMetrics exposes gatherer on Config.Service.MetricsAddr until ctx ends.
// It is a no-op when no address is configured.
func (r *Runtime) ServeMetrics(ctx context.Context, gatherer prometheus.Gatherer) {
	addr := r.Config.Service.MetricsAddr
	if addr == "" {
		return
	}
	router := chi.NewRouter()
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		logCtx := r.Logger.WithField(ctx, "metrics_addr", addr)
		r.Logger.Info(logCtx, "serving worker metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error(logCtx, "metrics listener stopped", err)
		}
	}()
}
