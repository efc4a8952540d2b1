package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/controllers"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/middleware"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/balances"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/bankaccounts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/ledger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/payouts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/settlement"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/vendors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/redis"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Balances     balances.Service
	Ledger       ledger.Service
	Payouts      payouts.Service
	BankAccounts bankaccounts.Service
	Vendors      vendors.Service
	Review       review.Service
	Settlement   settlement.Service
	DeadLetters  *outbox.DLQRepository
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	var (
		cache db.Pinger
		store redis.ResponseStore
	)
	if redisClient != nil {
		cache = redisClient
		store = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cache))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payouts", controllers.PayoutWebhook(svc.Payouts, cfg.Webhook.PayoutSigningSecret, logg))
	})

	r.Route("/api/v1/ledger", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleService, enums.ActorRoleAdmin))
		r.Post("/orders/settled", controllers.OrderSettled(svc.Settlement, logg))
		r.Post("/orders/{orderId}/status", controllers.OrderStatusChanged(svc.Settlement, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(store, logg))
		r.Get("/ping", controllers.AdminPing())

		r.Route("/v1/vendors/{vendorId}", func(r chi.Router) {
			r.Get("/balance", controllers.AdminVendorBalance(svc.Balances, logg))
			r.Get("/transactions", controllers.AdminVendorTransactions(svc.Ledger, logg))
			r.Get("/commission", controllers.AdminGetCommission(svc.Vendors, logg))
			r.Put("/commission", controllers.AdminSetCommission(svc.Vendors, logg))
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.AdminListPayouts(svc.Payouts, logg))
				r.Post("/", controllers.AdminCreatePayout(svc.Payouts, logg))
			})
			r.Route("/bank-accounts", func(r chi.Router) {
				r.Get("/", controllers.AdminListBankAccounts(svc.BankAccounts, logg))
				r.Post("/", controllers.AdminRegisterBankAccount(svc.BankAccounts, logg))
				r.Post("/{bankAccountId}/verify", controllers.AdminVerifyBankAccount(svc.BankAccounts, logg))
				r.Put("/{bankAccountId}/default", controllers.AdminSetDefaultBankAccount(svc.BankAccounts, logg))
			})
		})

		r.Route("/v1/payouts/{payoutId}", func(r chi.Router) {
			r.Get("/", controllers.AdminPayoutDetail(svc.Payouts, logg))
			r.Post("/confirm", controllers.AdminConfirmPayout(svc.Payouts, logg))
		})
		r.Post("/v1/orders/{orderId}/refund", controllers.AdminRefundOrder(svc.Settlement, logg))

		r.Route("/v1/review-items", func(r chi.Router) {
			r.Get("/", controllers.AdminListReviewItems(svc.Review, logg))
			r.Post("/{reviewItemId}/resolve", controllers.AdminResolveReviewItem(svc.Review, logg))
		})
		r.Get("/v1/outbox/dead-letters", controllers.AdminListDeadLetters(deadLetterSource(svc.DeadLetters), logg))
	})

	return r
}

// deadLetterSource avoids handing the controller a typed nil.
func deadLetterSource(repo *outbox.DLQRepository) controllers.DeadLetterLister {
	if repo == nil {
		return nil
	}
	return repo
}
