package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

const defaultPayoutBatch = 200

type payoutProcessor interface {
	SelectEligibleVendors(ctx context.Context, minThresholdCents int64) ([]uuid.UUID, error)
	RequestEligiblePayout(ctx context.Context, vendorID uuid.UUID, minThresholdCents int64, fraction *decimal.Decimal) (*models.Payout, error)
	Submit(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	ListPending(ctx context.Context, limit int) ([]models.Payout, error)
}

// PayoutRunJobParams configures the scheduled payout run.
type PayoutRunJobParams struct {
	Logger            *logger.Logger
	Payouts           payoutProcessor
	MinThresholdCents int64
	Fraction          decimal.Decimal
	BatchLimit        int
}

// PayoutRunSummary counts what a payout run did.
type PayoutRunSummary struct {
	Resubmitted int
	Eligible    int
	Created     int
	Submitted   int
	Skipped     int
	Failed      int
}

func NewPayoutRunJob(params PayoutRunJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout processor required")
	}
	if !params.Fraction.IsPositive() || params.Fraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("payout fraction must be in (0, 1], got %s", params.Fraction)
	}
	if params.MinThresholdCents < 0 {
		return nil, fmt.Errorf("payout threshold must be non-negative")
	}
	batch := params.BatchLimit
	if batch <= 0 {
		batch = defaultPayoutBatch
	}
	return &payoutRunJob{
		logg:      params.Logger,
		payouts:   params.Payouts,
		threshold: params.MinThresholdCents,
		fraction:  params.Fraction,
		batch:     batch,
	}, nil
}

type payoutRunJob struct {
	logg      *logger.Logger
	payouts   payoutProcessor
	threshold int64
	fraction  decimal.Decimal
	batch     int
	last      PayoutRunSummary
}

func (j *payoutRunJob) Name() string { return "payout-run" }

// Run first retries payouts a previous run created but could not hand to the
// rail, then drains every eligible vendor. Per-vendor failures do not stop the run.
func (j *payoutRunJob) Run(ctx context.Context) error {
	var summary PayoutRunSummary
	var errs []error

	pending, err := j.payouts.ListPending(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list pending payouts: %w", err)
	}
	for _, payout := range pending {
		if _, err := j.payouts.Submit(ctx, payout.ID); err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("resubmit payout %s: %w", payout.ID, err))
			j.logg.Error(j.logg.WithPayoutID(ctx, payout.ID), "payout resubmission failed", err)
			continue
		}
		summary.Resubmitted++
	}

	vendors, err := j.payouts.SelectEligibleVendors(ctx, j.threshold)
	if err != nil {
		return fmt.Errorf("select eligible vendors: %w", err)
	}
	summary.Eligible = len(vendors)

	fraction := j.fraction
	for _, vendorID := range vendors {
		if err := ctx.Err(); err != nil {
			return err
		}
		vendorCtx := j.logg.WithVendorID(ctx, vendorID)
		payout, err := j.payouts.RequestEligiblePayout(ctx, vendorID, j.threshold, &fraction)
		if err != nil {
			if skippable(err) {
				summary.Skipped++
				j.logg.Info(j.logg.WithField(vendorCtx, "reason", err.Error()), "vendor skipped by payout run")
				continue
			}
			summary.Failed++
			errs = append(errs, fmt.Errorf("create payout for vendor %s: %w", vendorID, err))
			j.logg.Error(vendorCtx, "payout creation failed", err)
			continue
		}
		summary.Created++

		if _, err := j.payouts.Submit(ctx, payout.ID); err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("submit payout %s: %w", payout.ID, err))
			j.logg.Error(j.logg.WithPayoutID(vendorCtx, payout.ID), "payout submission failed", err)
			continue
		}
		summary.Submitted++
	}

	j.last = summary
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"resubmitted": summary.Resubmitted,
		"eligible":    summary.Eligible,
		"created":     summary.Created,
		"submitted":   summary.Submitted,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
	}), "payout run complete")

	if err := multierr.Combine(errs...); err != nil {
		return fmt.Errorf("payout run: %d operations failed: %w", summary.Failed, err)
	}
	return nil
}

// skippable errors mean the vendor stopped qualifying between the scan and
// the reservation.
func skippable(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance) ||
		pkgerrors.IsCode(err, pkgerrors.CodeNoVerifiedAccount)
}
