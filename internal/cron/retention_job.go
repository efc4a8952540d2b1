package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultTerminalAttempts    = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams configures pruning of delivered outbox rows and old dead
// letters. Ledger transactions are never pruned.
type RetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Outbox           outboxPruner
	DeadLetters      deadLetterPruner
	OutboxDays       int
	DeadLetterDays   int
	TerminalAttempts int
}

func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.DeadLetters == nil:
		return nil, fmt.Errorf("dead letter repository required")
	}
	return &retentionJob{
		logg:             params.Logger,
		db:               params.DB,
		outbox:           params.Outbox,
		deadLetters:      params.DeadLetters,
		outboxDays:       positiveOr(params.OutboxDays, defaultOutboxRetentionDays),
		deadLetterDays:   positiveOr(params.DeadLetterDays, defaultDLQRetentionDays),
		terminalAttempts: positiveOr(params.TerminalAttempts, defaultTerminalAttempts),
		now:              time.Now,
	}, nil
}

type retentionJob struct {
	logg             *logger.Logger
	db               txRunner
	outbox           outboxPruner
	deadLetters      deadLetterPruner
	outboxDays       int
	deadLetterDays   int
	terminalAttempts int
	now              func() time.Time
}

func (j *retentionJob) Name() string { return "outbox-retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.AddDate(0, 0, -j.outboxDays)
	dlqCutoff := now.AddDate(0, 0, -j.deadLetterDays)

	var outboxDeleted, dlqDeleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if outboxDeleted, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.terminalAttempts); err != nil {
			return fmt.Errorf("prune outbox: %w", err)
		}
		if dlqDeleted, err = j.deadLetters.DeleteFailedBefore(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":       outboxCutoff,
		"outbox_deleted":      outboxDeleted,
		"dead_letter_cutoff":  dlqCutoff,
		"dead_letter_deleted": dlqDeleted,
	}), "retention cleanup complete")
	return nil
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
