package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/reconciliation"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

type fakePayouts struct {
	pending   []models.Payout
	eligible  []uuid.UUID
	requestFn func(vendorID uuid.UUID) (*models.Payout, error)
	submitErr map[uuid.UUID]error
	fractions []decimal.Decimal
	submitted []uuid.UUID
	threshold int64

	requestThresholds []int64
}

func (f *fakePayouts) SelectEligibleVendors(_ context.Context, min int64) ([]uuid.UUID, error) {
	f.threshold = min
	return f.eligible, nil
}

func (f *fakePayouts) RequestEligiblePayout(_ context.Context, vendorID uuid.UUID, min int64, fraction *decimal.Decimal) (*models.Payout, error) {
	f.requestThresholds = append(f.requestThresholds, min)
	f.fractions = append(f.fractions, *fraction)
	return f.requestFn(vendorID)
}

func (f *fakePayouts) Submit(_ context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	f.submitted = append(f.submitted, payoutID)
	if err := f.submitErr[payoutID]; err != nil {
		return nil, err
	}
	return &models.Payout{ID: payoutID}, nil
}

func (f *fakePayouts) ListPending(context.Context, int) ([]models.Payout, error) {
	return f.pending, nil
}

func newPayoutRunJob(t *testing.T, payouts *fakePayouts) *payoutRunJob {
	t.Helper()
	job, err := NewPayoutRunJob(PayoutRunJobParams{
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
		Payouts:           payouts,
		MinThresholdCents: 500,
		Fraction:          decimal.RequireFromString("0.8"),
	})
	if err != nil {
		t.Fatalf("NewPayoutRunJob: %v", err)
	}
	return job.(*payoutRunJob)
}

func TestPayoutRunCreatesAndSubmits(t *testing.T) {
	ready := uuid.New()
	broke := uuid.New()
	leftover := models.Payout{ID: uuid.New()}
	created := map[uuid.UUID]uuid.UUID{ready: uuid.New()}

	payouts := &fakePayouts{
		pending:  []models.Payout{leftover},
		eligible: []uuid.UUID{ready, broke},
		requestFn: func(vendorID uuid.UUID) (*models.Payout, error) {
			if vendorID == broke {
				return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance is too low")
			}
			return &models.Payout{ID: created[vendorID], VendorID: vendorID}, nil
		},
	}
	job := newPayoutRunJob(t, payouts)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if payouts.threshold != 500 {
		t.Fatalf("expected threshold 500, got %d", payouts.threshold)
	}
	if len(payouts.submitted) != 2 || payouts.submitted[0] != leftover.ID || payouts.submitted[1] != created[ready] {
		t.Fatalf("unexpected submissions %v", payouts.submitted)
	}
	for _, min := range payouts.requestThresholds {
		if min != 500 {
			t.Fatalf("expected reservation threshold 500, got %d", min)
		}
	}
	for _, fraction := range payouts.fractions {
		if !fraction.Equal(decimal.RequireFromString("0.8")) {
			t.Fatalf("expected fraction 0.8, got %s", fraction)
		}
	}
	want := PayoutRunSummary{Resubmitted: 1, Eligible: 2, Created: 1, Submitted: 1, Skipped: 1}
	if job.last != want {
		t.Fatalf("expected summary %+v, got %+v", want, job.last)
	}
}

func TestPayoutRunReportsFailuresAfterFinishing(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	secondPayout := uuid.New()
	payouts := &fakePayouts{
		eligible: []uuid.UUID{first, second},
		requestFn: func(vendorID uuid.UUID) (*models.Payout, error) {
			if vendorID == first {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "vendor balance kept changing")
			}
			return &models.Payout{ID: secondPayout, VendorID: vendorID}, nil
		},
		submitErr: map[uuid.UUID]error{},
	}
	job := newPayoutRunJob(t, payouts)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected wrapped conflict, got %v", err)
	}
	if len(payouts.submitted) != 1 || payouts.submitted[0] != secondPayout {
		t.Fatalf("expected second vendor to still be paid, got %v", payouts.submitted)
	}
	if job.last.Failed != 1 || job.last.Submitted != 1 {
		t.Fatalf("unexpected summary %+v", job.last)
	}
}

func TestNewPayoutRunJobValidatesFraction(t *testing.T) {
	for _, raw := range []string{"0", "1.5"} {
		_, err := NewPayoutRunJob(PayoutRunJobParams{
			Logger:   logger.New(logger.Options{ServiceName: "test"}),
			Payouts:  &fakePayouts{},
			Fraction: decimal.RequireFromString(raw),
		})
		if err == nil {
			t.Fatalf("expected error for fraction %s", raw)
		}
	}
}

type fakeReconciler struct {
	report *reconciliation.Report
	err    error
}

func (f fakeReconciler) Run(context.Context) (*reconciliation.Report, error) {
	return f.report, f.err
}

func TestReconciliationJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	clean, err := NewReconciliationJob(ReconciliationJobParams{
		Logger:     logg,
		Reconciler: fakeReconciler{report: &reconciliation.Report{VendorsChecked: 3}},
	})
	if err != nil {
		t.Fatalf("NewReconciliationJob: %v", err)
	}
	if clean.Name() != "ledger-reconciliation" {
		t.Fatalf("unexpected name %q", clean.Name())
	}
	if err := clean.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	drifted, _ := NewReconciliationJob(ReconciliationJobParams{
		Logger: logg,
		Reconciler: fakeReconciler{report: &reconciliation.Report{
			VendorsChecked: 3,
			Discrepancies:  []reconciliation.Discrepancy{{VendorID: uuid.New(), Check: reconciliation.CheckLedgerTotal}},
		}},
	})
	if err := drifted.Run(context.Background()); err != nil {
		t.Fatalf("discrepancies must not fail the job: %v", err)
	}

	broken, _ := NewReconciliationJob(ReconciliationJobParams{Logger: logg, Reconciler: fakeReconciler{err: errors.New("db down")}})
	if err := broken.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
