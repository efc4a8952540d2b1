package cron

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/reconciliation"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

type reconciler interface {
	Run(ctx context.Context) (*reconciliation.Report, error)
}

type ReconciliationJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

func NewReconciliationJob(params ReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconciliationJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type reconciliationJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *reconciliationJob) Name() string { return "ledger-reconciliation" }

// Run checks every vendor balance. Discrepancies are queued for review by the
// reconciler and do not fail the job.
func (j *reconciliationJob) Run(ctx context.Context) error {
	report, err := j.reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("ledger reconciliation: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"vendors_checked": report.VendorsChecked,
		"discrepancies":   len(report.Discrepancies),
	})
	if len(report.Discrepancies) > 0 {
		j.logg.Warn(logCtx, "ledger reconciliation found discrepancies")
		return nil
	}
	j.logg.Info(logCtx, "ledger reconciliation clean")
	return nil
}
