package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/vendors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

type commissionService interface {
	CommissionFor(ctx context.Context, vendorID uuid.UUID) (vendors.Commission, error)
	SetCommission(ctx context.Context, vendorID uuid.UUID, percent decimal.Decimal, currency enums.Currency) (*models.VendorAccount, error)
}

type setCommissionRequest struct {
	CommissionPercent decimal.Decimal `json:"commission_percent" validate:"min=0,max=100"`
	Currency          string          `json:"currency" validate:"required,currency"`
}

func AdminGetCommission(svc commissionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commission, err := svc.CommissionFor(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCommissionResponse(commission))
	}
}

// AdminSetCommission changes the rate applied to the vendor's future settlements.
func AdminSetCommission(svc commissionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vendor service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setCommissionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.SetCommission(r.Context(), vendorID, req.CommissionPercent, enums.Currency(strings.ToUpper(req.Currency)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCommissionResponse(vendors.Commission{
			VendorID:   account.VendorID,
			Percent:    account.CommissionPercent,
			Currency:   account.Currency,
			Configured: true,
		}))
	}
}
