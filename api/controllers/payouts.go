package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

const defaultPayoutListLimit = 50

type payoutRequester interface {
	RequestPayout(ctx context.Context, vendorID uuid.UUID, fraction *decimal.Decimal) (*models.Payout, error)
	Submit(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

type payoutReader interface {
	ListPayouts(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Payout, error)
	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

type payoutConfirmer interface {
	Confirm(ctx context.Context, payoutID uuid.UUID, outcome enums.PayoutOutcome, reason string) (*models.Payout, error)
}

type createPayoutRequest struct {
	Fraction *decimal.Decimal `json:"fraction" validate:"omitempty,gt=0,lte=1"`
}

type confirmPayoutRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=paid failed"`
	Reason  string `json:"reason" validate:"max=500"`
}

// AdminCreatePayout reserves a share of the vendor's available balance and
// hands the payout to the rail. A rail failure leaves the payout pending for
// the next scheduled run.
func AdminCreatePayout(svc payoutRequester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createPayoutRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.RequestPayout(r.Context(), vendorID, req.Fraction)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		submitted, err := svc.Submit(r.Context(), payout.ID)
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithPayoutID(r.Context(), payout.ID), "payout created but rail submission deferred")
			}
			submitted = payout
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutResponse(submitted))
	}
}

// AdminListPayouts returns the most recent payouts of a vendor.
func AdminListPayouts(svc payoutReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultPayoutListLimit, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListPayouts(r.Context(), vendorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]payoutResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newPayoutResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

func AdminPayoutDetail(svc payoutReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}

// AdminConfirmPayout records a rail outcome reported out of band, for rails
// without webhooks.
func AdminConfirmPayout(svc payoutConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req confirmPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Confirm(r.Context(), payoutID, enums.PayoutOutcome(req.Outcome), validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(payout))
	}
}
