// Package reconciliation cross-checks vendor balances against the ledger.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/review"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
)

const defaultBatchSize = 200

// Checks performed per vendor.
const (
	CheckLifetimeVolume = "lifetime_volume"
	CheckLedgerTotal    = "ledger_total"
	CheckNonNegative    = "non_negative"
)

// Discrepancy is a balance that disagrees with the ledger.
type Discrepancy struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	Check         string    `json:"check"`
	Bucket        string    `json:"bucket,omitempty"`
	ExpectedCents int64     `json:"expected_cents"`
	ActualCents   int64     `json:"actual_cents"`
}

// Report summarises one reconciliation run.
type Report struct {
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	VendorsChecked int           `json:"vendors_checked"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
}

// Service runs reconciliation passes.
type Service interface {
	Run(ctx context.Context) (*Report, error)
}

type balanceLister interface {
	ListAll(ctx context.Context, afterVendorID uuid.UUID, limit int) ([]models.VendorBalance, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

type reviewReporter interface {
	ReportTx(ctx context.Context, tx *gorm.DB, item review.Item) (*models.ReviewItem, error)
}

// ServiceParams groups dependencies for reconciliation.
type ServiceParams struct {
	Repository        Repository
	Balances          balanceLister
	Review            reviewReporter
	Outbox            eventEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.LedgerMetrics
	BatchSize         int
}

type service struct {
	repo      Repository
	balances  balanceLister
	review    reviewReporter
	outbox    eventEmitter
	txRunner  txRunner
	logg      *logger.Logger
	metrics   *metrics.LedgerMetrics
	batchSize int
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation repository required")
	case params.Balances == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance lister required")
	case params.Review == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "review reporter required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &service{
		repo:      params.Repository,
		balances:  params.Balances,
		review:    params.Review,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
		metrics:   params.Metrics,
		batchSize: batch,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run walks every vendor balance in vendor id order. Each discrepancy opens a
// review item and emits a drift event; balances are never corrected here.
func (s *service) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: s.now(), Discrepancies: []Discrepancy{}}

	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rows, err := s.balances.ListAll(ctx, after, s.batchSize)
		if err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor balances")
		}
		if len(rows) == 0 {
			break
		}

		found, err := s.checkBatch(ctx, rows)
		if err != nil {
			return report, err
		}
		for _, d := range found {
			if err := s.record(ctx, d); err != nil {
				return report, err
			}
		}
		report.VendorsChecked += len(rows)
		report.Discrepancies = append(report.Discrepancies, found...)

		after = rows[len(rows)-1].VendorID
		if len(rows) < s.batchSize {
			break
		}
	}

	report.FinishedAt = s.now()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"vendors_checked": report.VendorsChecked,
		"discrepancies":   len(report.Discrepancies),
	}), "ledger reconciliation finished")
	return report, nil
}

func (s *service) checkBatch(ctx context.Context, rows []models.VendorBalance) ([]Discrepancy, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.VendorID)
	}
	earnings, err := s.repo.SumEarnings(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum platform fee earnings")
	}
	ledgerTotals, err := s.repo.SumCompletedTransactions(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger transactions")
	}

	var found []Discrepancy
	for _, row := range rows {
		found = append(found, Check(row, earnings[row.VendorID], ledgerTotals[row.VendorID])...)
	}
	return found, nil
}

// Check compares one balance with its ledger sums.
func Check(balance models.VendorBalance, earningsCents, ledgerCents int64) []Discrepancy {
	var out []Discrepancy
	buckets := []struct {
		name  string
		value int64
	}{
		{"available", balance.AvailableCents},
		{"pending", balance.PendingCents},
		{"reserved", balance.ReservedCents},
	}
	for _, bucket := range buckets {
		if bucket.value < 0 {
			out = append(out, Discrepancy{VendorID: balance.VendorID, Check: CheckNonNegative, Bucket: bucket.name, ActualCents: bucket.value})
		}
	}
	if balance.LifetimeVolumeCents != earningsCents {
		out = append(out, Discrepancy{
			VendorID:      balance.VendorID,
			Check:         CheckLifetimeVolume,
			ExpectedCents: earningsCents,
			ActualCents:   balance.LifetimeVolumeCents,
		})
	}
	if balance.TotalCents() != ledgerCents {
		out = append(out, Discrepancy{
			VendorID:      balance.VendorID,
			Check:         CheckLedgerTotal,
			ExpectedCents: ledgerCents,
			ActualCents:   balance.TotalCents(),
		})
	}
	return out
}

func (s *service) record(ctx context.Context, d Discrepancy) error {
	logCtx := s.logg.WithFields(s.logg.WithVendorID(ctx, d.VendorID), map[string]any{
		"check":          d.Check,
		"expected_cents": d.ExpectedCents,
		"actual_cents":   d.ActualCents,
	})
	s.logg.Warn(logCtx, "vendor balance drift detected")

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.review.ReportTx(ctx, tx, review.Item{
			Kind:                 enums.ReviewItemBalanceDrift,
			VendorID:             d.VendorID,
			AttemptedAmountCents: d.ActualCents,
			Message:              fmt.Sprintf("%s check failed: expected %d, found %d", d.Check, d.ExpectedCents, d.ActualCents),
			Details:              d,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventVendorBalanceDrifted,
			AggregateType: enums.AggregateVendorBalance,
			AggregateID:   d.VendorID,
			Actor:         outbox.SystemActor("reconciliation"),
			Data: payloads.VendorBalanceDriftedEvent{
				VendorID:      d.VendorID,
				Check:         d.Check,
				ExpectedCents: d.ExpectedCents,
				ActualCents:   d.ActualCents,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("record discrepancy for vendor %s: %w", d.VendorID, err)
	}
	s.metrics.IncDiscrepancy(d.Check)
	return nil
}
