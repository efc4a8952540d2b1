package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Luzimarket-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and Redis answer a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, database pinger, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Luzimarket-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		deps := []struct {
			name string
			dep  pinger
		}{
			{"database", database},
			{"redis", cache},
		}
		for _, d := range deps {
			if d.dep == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, d.name+" unavailable"))
				return
			}
			if err := d.dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, d.name+" ping failed"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
