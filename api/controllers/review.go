package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/middleware"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

type reviewQueue interface {
	ListOpen(ctx context.Context, limit int) ([]models.ReviewItem, error)
	Resolve(ctx context.Context, id uuid.UUID, actor, note string) (*models.ReviewItem, error)
}

type resolveReviewItemRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

// AdminListReviewItems returns unresolved ledger anomalies, oldest first.
func AdminListReviewItems(svc reviewQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review queue unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListOpen(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]reviewItemResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newReviewItemResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

// AdminResolveReviewItem closes a review item on behalf of the calling operator.
func AdminResolveReviewItem(svc reviewQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "review queue unavailable"))
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "reviewItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveReviewItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Resolve(r.Context(), itemID, middleware.ActorFromContext(r.Context()), validators.SanitizeString(req.Note, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReviewItemResponse(item))
	}
}
