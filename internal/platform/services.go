// Package platform assembles the ledger services shared by the api and the
// workers.
package platform

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/balances"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/bankaccounts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/ledger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/payouts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/reconciliation"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/settlement"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/vendors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/config"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
)

// Services holds every ledger service built over one database client.
type Services struct {
	Outbox         *outbox.Service
	OutboxRepo     *outbox.Repository
	DeadLetters    *outbox.DLQRepository
	Metrics        *metrics.LedgerMetrics
	Vendors        vendors.Service
	Balances       balances.Service
	Ledger         ledger.Service
	BankAccounts   bankaccounts.Service
	Review         review.Service
	Payouts        payouts.Service
	Settlement     settlement.Service
	Reconciliation reconciliation.Service
}

// Params configures NewServices. Rail defaults to the manual rail.
type Params struct {
	Config     *config.Config
	DB         *db.Client
	Logger     *logger.Logger
	Registerer prometheus.Registerer
	Rail       payouts.PaymentRail
}

func NewServices(params Params) (*Services, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	defaultCommission, err := decimal.NewFromString(cfg.Ledger.DefaultCommission)
	if err != nil {
		return nil, fmt.Errorf("parse default commission %q: %w", cfg.Ledger.DefaultCommission, err)
	}
	currency := enums.Currency(cfg.Ledger.DefaultCurrency)
	retryPolicy := db.RetryPolicyFromConfig(cfg.Ledger)
	gdb := params.DB.DB()

	rail := params.Rail
	if rail == nil {
		rail = payouts.NewManualRail()
	}

	out := &Services{
		OutboxRepo:  outbox.NewRepository(gdb),
		DeadLetters: outbox.NewDLQRepository(gdb),
		Metrics:     metrics.NewLedgerMetrics(params.Registerer),
	}
	out.Outbox = outbox.NewService(out.OutboxRepo, params.Logger)

	if out.Vendors, err = vendors.NewService(vendors.ServiceParams{
		Repository:        vendors.NewRepository(gdb),
		DefaultCommission: defaultCommission,
		DefaultCurrency:   currency,
	}); err != nil {
		return nil, fmt.Errorf("vendors service: %w", err)
	}

	if out.Balances, err = balances.NewService(balances.ServiceParams{
		Repository:      balances.NewRepository(gdb),
		DefaultCurrency: currency,
		Metrics:         out.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("balances service: %w", err)
	}

	if out.Ledger, err = ledger.NewService(ledger.NewRepository(gdb)); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	if out.BankAccounts, err = bankaccounts.NewService(bankaccounts.ServiceParams{
		Repository:        bankaccounts.NewRepository(gdb),
		TransactionRunner: params.DB,
		Outbox:            out.Outbox,
	}); err != nil {
		return nil, fmt.Errorf("bank accounts service: %w", err)
	}

	if out.Review, err = review.NewService(review.ServiceParams{
		Repository:        review.NewRepository(gdb),
		TransactionRunner: params.DB,
		Outbox:            out.Outbox,
		Logger:            params.Logger,
		Metrics:           out.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("review service: %w", err)
	}

	if out.Payouts, err = payouts.NewService(payouts.ServiceParams{
		Repository:        payouts.NewRepository(gdb),
		Balances:          out.Balances,
		Ledger:            out.Ledger,
		BankAccounts:      out.BankAccounts,
		Review:            out.Review,
		Outbox:            out.Outbox,
		Rail:              rail,
		TransactionRunner: params.DB,
		Logger:            params.Logger,
		Metrics:           out.Metrics,
		Config:            cfg.Payout,
		RetryPolicy:       retryPolicy,
	}); err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	if out.Settlement, err = settlement.NewService(settlement.ServiceParams{
		Vendors:           out.Vendors,
		Ledger:            out.Ledger,
		Balances:          out.Balances,
		Review:            out.Review,
		Outbox:            out.Outbox,
		TransactionRunner: params.DB,
		Logger:            params.Logger,
		Metrics:           out.Metrics,
		RetryPolicy:       retryPolicy,
	}); err != nil {
		return nil, fmt.Errorf("settlement service: %w", err)
	}

	if out.Reconciliation, err = reconciliation.NewService(reconciliation.ServiceParams{
		Repository:        reconciliation.NewRepository(gdb),
		Balances:          out.Balances,
		Review:            out.Review,
		Outbox:            out.Outbox,
		TransactionRunner: params.DB,
		Logger:            params.Logger,
		Metrics:           out.Metrics,
		BatchSize:         cfg.Payout.BatchLimit,
	}); err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	return out, nil
}
