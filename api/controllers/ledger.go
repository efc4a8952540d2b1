package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/ledger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/logger"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/pagination"

	"github.com/abdul-hamid-achik/luzimarket-ledger/api/responses"
	"github.com/abdul-hamid-achik/luzimarket-ledger/api/validators"
)

type balanceReader interface {
	GetBalance(ctx context.Context, vendorID uuid.UUID) (*models.VendorBalance, error)
}

type transactionLister interface {
	ListTransactions(ctx context.Context, vendorID uuid.UUID, filter ledger.ListFilter) (*ledger.TransactionPage, error)
}

// AdminVendorBalance returns the current balance buckets of a vendor.
func AdminVendorBalance(svc balanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "balance service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBalanceResponse(balance))
	}
}

// AdminVendorTransactions pages through a vendor's ledger, newest first.
func AdminVendorTransactions(svc transactionLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := validators.ParseQueryString(r, "cursor", 256)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := ledger.ListFilter{
			From:   from,
			To:     to,
			Limit:  limit,
			Cursor: cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			txnType := enums.TransactionType(raw)
			filter.Type = &txnType
		}

		page, err := svc.ListTransactions(r.Context(), vendorID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := transactionPageResponse{
			Items:      make([]transactionResponse, 0, len(page.Items)),
			NextCursor: page.NextCursor,
		}
		for _, item := range page.Items {
			resp.Items = append(resp.Items, newTransactionResponse(item))
		}
		responses.WriteSuccess(w, resp)
	}
}
