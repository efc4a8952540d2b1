// Package review queues ledger anomalies for manual reconciliation.
package review

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox/payloads"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Item describes an anomaly to hand to operators.
type Item struct {
	Kind                 enums.ReviewItemKind
	VendorID             uuid.UUID
	OrderID              *uuid.UUID
	PayoutID             *uuid.UUID
	AttemptedAmountCents int64
	Message              string
	Details              any
}

// Service is the operator review queue.
type Service interface {
	Report(ctx context.Context, item Item) (*models.ReviewItem, error)
	ReportTx(ctx context.Context, tx *gorm.DB, item Item) (*models.ReviewItem, error)
	ListOpen(ctx context.Context, limit int) ([]models.ReviewItem, error)
	Resolve(ctx context.Context, id uuid.UUID, actor, note string) (*models.ReviewItem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, events ...outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the review queue.
type ServiceParams struct {
	Repository        Repository
	TransactionRunner txRunner
	Outbox            eventEmitter
	Logger            *logger.Logger
	Metrics           *metrics.LedgerMetrics
}

type service struct {
	repo     Repository
	txRunner txRunner
	outbox   eventEmitter
	logg     *logger.Logger
	metrics  *metrics.LedgerMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "review repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		repo:     params.Repository,
		txRunner: params.TransactionRunner,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Report persists the item in its own transaction. It is used after the
// money movement that failed has already rolled back.
func (s *service) Report(ctx context.Context, item Item) (*models.ReviewItem, error) {
	var created *models.ReviewItem
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.ReportTx(ctx, tx, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) ReportTx(ctx context.Context, tx *gorm.DB, item Item) (*models.ReviewItem, error) {
	if !item.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid review item kind")
	}
	if strings.TrimSpace(item.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review item message is required")
	}

	row := &models.ReviewItem{
		Kind:                 item.Kind,
		VendorID:             item.VendorID,
		OrderID:              item.OrderID,
		PayoutID:             item.PayoutID,
		AttemptedAmountCents: item.AttemptedAmountCents,
		Message:              item.Message,
		CreatedAt:            s.now(),
	}
	if item.Details != nil {
		raw, err := json.Marshal(item.Details)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode review item details")
		}
		row.Details = raw
	}

	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review item")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReviewItemOpened,
		AggregateType: enums.AggregateReviewItem,
		AggregateID:   row.ID,
		Data: payloads.ReviewItemOpenedEvent{
			ReviewItemID:         row.ID,
			Kind:                 row.Kind,
			VendorID:             row.VendorID,
			OrderID:              row.OrderID,
			PayoutID:             row.PayoutID,
			AttemptedAmountCents: row.AttemptedAmountCents,
			Message:              row.Message,
		},
		OccurredAt: row.CreatedAt,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit review item event")
	}

	s.metrics.IncReviewItem(string(row.Kind))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"review_item_id":  row.ID.String(),
		"kind":            row.Kind,
		"vendor_id":       row.VendorID.String(),
		"attempted_cents": row.AttemptedAmountCents,
	})
	s.logg.Warn(logCtx, "ledger review item opened")
	return row, nil
}

func (s *service) ListOpen(ctx context.Context, limit int) ([]models.ReviewItem, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.ListOpen(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list review items")
	}
	return rows, nil
}

func (s *service) Resolve(ctx context.Context, id uuid.UUID, actor, note string) (*models.ReviewItem, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolving actor is required")
	}
	resolved, err := s.repo.Resolve(ctx, id, actor, strings.TrimSpace(note), s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve review item")
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review item")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review item not found")
	}
	if !resolved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "review item already resolved")
	}
	return item, nil
}

// ItemFromError builds a review item from a typed ledger error, carrying its
// code and details for the operator.
func ItemFromError(kind enums.ReviewItemKind, err error, vendorID uuid.UUID, orderID, payoutID *uuid.UUID, attempted int64) Item {
	item := Item{
		Kind:                 kind,
		VendorID:             vendorID,
		OrderID:              orderID,
		PayoutID:             payoutID,
		AttemptedAmountCents: attempted,
	}
	if typed := pkgerrors.As(err); typed != nil {
		item.Message = typed.Message()
		item.Details = map[string]any{
			"code":    typed.Code(),
			"details": typed.Details(),
		}
		return item
	}
	if err != nil {
		item.Message = err.Error()
	}
	return item
}
