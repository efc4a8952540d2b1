package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/outbox"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

// DeadLetterLister reads ledger events the outbox publisher gave up on.
type DeadLetterLister interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
}

type deadLetterResponse struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         string                     `json:"error,omitempty"`
	Attempts      int                        `json:"attempts"`
	Payload       json.RawMessage            `json:"payload"`
	FailedAt      time.Time                  `json:"failed_at"`
}

// AdminListDeadLetters lists dead-lettered ledger events, newest first.
// Optional filters: reason, aggregate_id, limit.
func AdminListDeadLetters(repo DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letters unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := outbox.DLQFilter{Limit: limit}

		reason, err := validators.ParseQueryString(r, "reason", 32)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if reason != "" {
			filter.Reason = enums.OutboxDLQErrorReason(reason)
			if !filter.Reason.IsValid() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown dead letter reason").WithDetails(map[string]any{"field": "reason"}))
				return
			}
		}

		rawAggregate, err := validators.ParseQueryString(r, "aggregate_id", 36)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if rawAggregate != "" {
			id, err := uuid.Parse(rawAggregate)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "aggregate_id must be a uuid").WithDetails(map[string]any{"field": "aggregate_id"}))
				return
			}
			filter.AggregateID = &id
		}

		rows, err := repo.List(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		items := make([]deadLetterResponse, 0, len(rows))
		for i := range rows {
			row := &rows[i]
			item := deadLetterResponse{
				EventID:       row.EventID,
				EventType:     row.EventType,
				AggregateType: row.AggregateType,
				AggregateID:   row.AggregateID,
				Reason:        row.ErrorReason,
				Attempts:      row.AttemptCount,
				Payload:       row.Payload,
				FailedAt:      row.FailedAt,
			}
			if row.ErrorMessage != nil {
				item.Error = *row.ErrorMessage
			}
			items = append(items, item)
		}
		responses.WriteSuccess(w, items)
	}
}
