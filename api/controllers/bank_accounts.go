package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/bankaccounts"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

type bankAccountService interface {
	Register(ctx context.Context, input bankaccounts.RegisterInput) (*models.BankAccount, error)
	Verify(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error)
	SetDefault(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error)
	List(ctx context.Context, vendorID uuid.UUID) ([]models.BankAccount, error)
}

type registerBankAccountRequest struct {
	HolderName string `json:"holder_name" validate:"required,max=200"`
	HolderType string `json:"holder_type" validate:"required,oneof=individual company"`
	BankName   string `json:"bank_name" validate:"required,max=120"`
	Last4      string `json:"last4" validate:"required,len=4,numeric"`
	Currency   string `json:"currency" validate:"required,currency"`
	Country    string `json:"country" validate:"required,len=2"`
	IsDefault  bool   `json:"is_default"`
}

func AdminRegisterBankAccount(svc bankAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank account service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req registerBankAccountRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.Register(r.Context(), bankaccounts.RegisterInput{
			VendorID:   vendorID,
			HolderName: validators.SanitizeString(req.HolderName, 200),
			HolderType: enums.BankAccountHolderType(req.HolderType),
			BankName:   validators.SanitizeString(req.BankName, 120),
			Last4:      req.Last4,
			Currency:   enums.Currency(strings.ToUpper(req.Currency)),
			Country:    strings.ToUpper(req.Country),
			IsDefault:  req.IsDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newBankAccountResponse(account))
	}
}

func AdminListBankAccounts(svc bankAccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank account service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]bankAccountResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newBankAccountResponse(&rows[i]))
		}
		responses.WriteSuccess(w, items)
	}
}

// AdminVerifyBankAccount marks an account as verified, making it eligible
// as a payout destination.
func AdminVerifyBankAccount(svc bankAccountService, logg *logger.Logger) http.HandlerFunc {
	return bankAccountAction(svc, logg, func(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error) {
		return svc.Verify(ctx, vendorID, bankAccountID)
	})
}

// AdminSetDefaultBankAccount makes the account the vendor's payout destination.
func AdminSetDefaultBankAccount(svc bankAccountService, logg *logger.Logger) http.HandlerFunc {
	return bankAccountAction(svc, logg, func(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error) {
		return svc.SetDefault(ctx, vendorID, bankAccountID)
	})
}

func bankAccountAction(svc bankAccountService, logg *logger.Logger, action func(ctx context.Context, vendorID, bankAccountID uuid.UUID) (*models.BankAccount, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank account service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		accountID, err := validators.ParseUUIDParam(r, "bankAccountId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBankAccountID(logg.WithVendorID(ctx, vendorID), accountID)
		}
		account, err := action(ctx, vendorID, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBankAccountResponse(account))
	}
}
