package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/settlement"
	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/vendors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

type balanceResponse struct {
	VendorID            uuid.UUID      `json:"vendor_id"`
	AvailableCents      int64          `json:"available_cents"`
	PendingCents        int64          `json:"pending_cents"`
	ReservedCents       int64          `json:"reserved_cents"`
	TotalCents          int64          `json:"total_cents"`
	LifetimeVolumeCents int64          `json:"lifetime_volume_cents"`
	Currency            enums.Currency `json:"currency"`
	LastUpdated         *time.Time     `json:"last_updated,omitempty"`
}

func newBalanceResponse(b *models.VendorBalance) balanceResponse {
	resp := balanceResponse{
		VendorID:            b.VendorID,
		AvailableCents:      b.AvailableCents,
		PendingCents:        b.PendingCents,
		ReservedCents:       b.ReservedCents,
		TotalCents:          b.TotalCents(),
		LifetimeVolumeCents: b.LifetimeVolumeCents,
		Currency:            b.Currency,
	}
	if !b.LastUpdated.IsZero() {
		updated := b.LastUpdated
		resp.LastUpdated = &updated
	}
	return resp
}

type transactionResponse struct {
	ID          uuid.UUID               `json:"id"`
	VendorID    uuid.UUID               `json:"vendor_id"`
	OrderID     *uuid.UUID              `json:"order_id,omitempty"`
	PayoutID    *uuid.UUID              `json:"payout_id,omitempty"`
	ReversesID  *uuid.UUID              `json:"reverses_id,omitempty"`
	Type        enums.TransactionType   `json:"type"`
	AmountCents int64                   `json:"amount_cents"`
	Currency    enums.Currency          `json:"currency"`
	Status      enums.TransactionStatus `json:"status"`
	Description string                  `json:"description"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

type transactionPageResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func newTransactionResponse(t models.LedgerTransaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		VendorID:    t.VendorID,
		OrderID:     t.OrderID,
		PayoutID:    t.PayoutID,
		ReversesID:  t.ReversesID,
		Type:        t.Type,
		AmountCents: t.AmountCents,
		Currency:    t.Currency,
		Status:      t.Status,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

type payoutResponse struct {
	ID            uuid.UUID          `json:"id"`
	VendorID      uuid.UUID          `json:"vendor_id"`
	BankAccountID uuid.UUID          `json:"bank_account_id"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      enums.Currency     `json:"currency"`
	Status        enums.PayoutStatus `json:"status"`
	Method        enums.PayoutMethod `json:"method"`
	RailReference *string            `json:"rail_reference,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ProcessedAt   *time.Time         `json:"processed_at,omitempty"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	FailedAt      *time.Time         `json:"failed_at,omitempty"`
}

func newPayoutResponse(p *models.Payout) payoutResponse {
	return payoutResponse{
		ID:            p.ID,
		VendorID:      p.VendorID,
		BankAccountID: p.BankAccountID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Status:        p.Status,
		Method:        p.Method,
		RailReference: p.RailReference,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		ProcessedAt:   p.ProcessedAt,
		PaidAt:        p.PaidAt,
		FailedAt:      p.FailedAt,
	}
}

type bankAccountResponse struct {
	ID         uuid.UUID                   `json:"id"`
	VendorID   uuid.UUID                   `json:"vendor_id"`
	HolderName string                      `json:"holder_name"`
	HolderType enums.BankAccountHolderType `json:"holder_type"`
	BankName   string                      `json:"bank_name"`
	Last4      string                      `json:"last4"`
	Currency   enums.Currency              `json:"currency"`
	Country    string                      `json:"country"`
	IsDefault  bool                        `json:"is_default"`
	Verified   bool                        `json:"verified"`
	VerifiedAt *time.Time                  `json:"verified_at,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
}

func newBankAccountResponse(a *models.BankAccount) bankAccountResponse {
	return bankAccountResponse{
		ID:         a.ID,
		VendorID:   a.VendorID,
		HolderName: a.HolderName,
		HolderType: a.HolderType,
		BankName:   a.BankName,
		Last4:      a.Last4,
		Currency:   a.Currency,
		Country:    a.Country,
		IsDefault:  a.IsDefault,
		Verified:   a.Verified(),
		VerifiedAt: a.VerifiedAt,
		CreatedAt:  a.CreatedAt,
	}
}

type commissionResponse struct {
	VendorID          uuid.UUID      `json:"vendor_id"`
	CommissionPercent string         `json:"commission_percent"`
	Currency          enums.Currency `json:"currency"`
	Configured        bool           `json:"configured"`
}

func newCommissionResponse(c vendors.Commission) commissionResponse {
	return commissionResponse{
		VendorID:          c.VendorID,
		CommissionPercent: c.Percent.StringFixed(2),
		Currency:          c.Currency,
		Configured:        c.Configured,
	}
}

type reviewItemResponse struct {
	ID                   uuid.UUID            `json:"id"`
	Kind                 enums.ReviewItemKind `json:"kind"`
	VendorID             uuid.UUID            `json:"vendor_id"`
	OrderID              *uuid.UUID           `json:"order_id,omitempty"`
	PayoutID             *uuid.UUID           `json:"payout_id,omitempty"`
	AttemptedAmountCents int64                `json:"attempted_amount_cents"`
	Message              string               `json:"message"`
	Details              any                  `json:"details,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	ResolvedAt           *time.Time           `json:"resolved_at,omitempty"`
	ResolvedBy           *string              `json:"resolved_by,omitempty"`
	ResolutionNote       *string              `json:"resolution_note,omitempty"`
}

func newReviewItemResponse(item *models.ReviewItem) reviewItemResponse {
	resp := reviewItemResponse{
		ID:                   item.ID,
		Kind:                 item.Kind,
		VendorID:             item.VendorID,
		OrderID:              item.OrderID,
		PayoutID:             item.PayoutID,
		AttemptedAmountCents: item.AttemptedAmountCents,
		Message:              item.Message,
		CreatedAt:            item.CreatedAt,
		ResolvedAt:           item.ResolvedAt,
		ResolvedBy:           item.ResolvedBy,
		ResolutionNote:       item.ResolutionNote,
	}
	if len(item.Details) > 0 {
		resp.Details = item.Details
	}
	return resp
}

type feeResponse struct {
	ID                  uuid.UUID               `json:"id"`
	OrderAmountCents    int64                   `json:"order_amount_cents"`
	ShippingAmountCents int64                   `json:"shipping_amount_cents"`
	FeePercentage       string                  `json:"fee_percentage"`
	FeeAmountCents      int64                   `json:"fee_amount_cents"`
	VendorEarningsCents int64                   `json:"vendor_earnings_cents"`
	Currency            enums.Currency          `json:"currency"`
	Status              enums.PlatformFeeStatus `json:"status"`
}

type settlementResponse struct {
	OrderID  uuid.UUID    `json:"order_id"`
	VendorID uuid.UUID    `json:"vendor_id"`
	Created  bool         `json:"created"`
	Movement string       `json:"movement,omitempty"`
	Fee      *feeResponse `json:"fee,omitempty"`
}

func newSettlementResponse(result *settlement.Result) settlementResponse {
	resp := settlementResponse{
		OrderID:  result.OrderID,
		VendorID: result.VendorID,
		Created:  result.Created,
		Movement: string(result.Movement),
	}
	if fee := result.Fee; fee != nil {
		resp.Fee = &feeResponse{
			ID:                  fee.ID,
			OrderAmountCents:    fee.OrderAmountCents,
			ShippingAmountCents: fee.ShippingAmountCents,
			FeePercentage:       fee.FeePercentage.StringFixed(2),
			FeeAmountCents:      fee.FeeAmountCents,
			VendorEarningsCents: fee.VendorEarningsCents,
			Currency:            fee.Currency,
			Status:              fee.Status,
		}
	}
	return resp
}
