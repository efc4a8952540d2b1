// Package ledger is the append-only record of vendor money movements.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/internal/fees"
	dbpkg "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/pagination"
)

const feeSavePoint = "ledger_platform_fee"

// Service records settlements, payouts and reversals. Every mutating call
// runs on the caller's transaction so it commits together with the balance change.
type Service interface {
	RecordSettlement(ctx context.Context, tx *gorm.DB, input SettlementInput) (*SettlementRecord, bool, error)
	MarkCollected(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee) (bool, error)
	RecordReversal(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee, reason string) (*models.LedgerTransaction, bool, error)
	RecordPayout(ctx context.Context, tx *gorm.DB, payout *models.Payout) (*models.LedgerTransaction, error)
	FindFee(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PlatformFee, error)
	ListTransactions(ctx context.Context, vendorID uuid.UUID, filter ListFilter) (*TransactionPage, error)
}

// SettlementInput captures a paid order and its computed fee split.
type SettlementInput struct {
	OrderID  uuid.UUID
	VendorID uuid.UUID
	Currency enums.Currency
	Split    fees.Result
}

// SettlementRecord groups the rows written for one settled order.
type SettlementRecord struct {
	Fee  models.PlatformFee
	Sale models.LedgerTransaction
	Cost models.LedgerTransaction
}

// ListFilter narrows ListTransactions. From is inclusive, To exclusive.
type ListFilter struct {
	Type   *enums.TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

// TransactionPage is one page of ledger transactions, newest first.
type TransactionPage struct {
	Items      []models.LedgerTransaction
	NextCursor string
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// RecordSettlement writes the platform fee plus its sale and fee entries. It is
// idempotent per order: when a fee already exists (including one committed by a
// concurrent writer) the stored record is returned and created is false.
func (s *service) RecordSettlement(ctx context.Context, tx *gorm.DB, input SettlementInput) (*SettlementRecord, bool, error) {
	if tx == nil {
		return nil, false, fmt.Errorf("transaction required")
	}
	if err := validateSettlement(input); err != nil {
		return nil, false, err
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindFeeByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("find platform fee: %w", err)
	}
	if existing != nil {
		record, err := s.loadSettlement(ctx, repo, existing)
		return record, false, err
	}

	now := s.now()
	fee := &models.PlatformFee{
		OrderID:             input.OrderID,
		VendorID:            input.VendorID,
		OrderAmountCents:    input.Split.OrderAmountCents,
		ShippingAmountCents: input.Split.ShippingAmountCents,
		FeePercentage:       input.Split.FeePercentage,
		FeeAmountCents:      input.Split.FeeAmountCents,
		VendorEarningsCents: input.Split.VendorEarningsCents,
		Currency:            input.Currency,
		Status:              enums.PlatformFeeStatusPending,
		CreatedAt:           now,
	}

	if err := repo.SavePoint(feeSavePoint); err != nil {
		return nil, false, fmt.Errorf("savepoint: %w", err)
	}
	if err := repo.CreateFee(ctx, fee); err != nil {
		if !dbpkg.IsUniqueViolation(err, "") {
			return nil, false, fmt.Errorf("create platform fee: %w", err)
		}
		if rbErr := repo.RollbackTo(feeSavePoint); rbErr != nil {
			return nil, false, fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		winner, err := repo.FindFeeByOrderID(ctx, input.OrderID)
		if err != nil {
			return nil, false, fmt.Errorf("reload platform fee: %w", err)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("platform fee for order %s vanished after unique violation", input.OrderID)
		}
		record, err := s.loadSettlement(ctx, repo, winner)
		return record, false, err
	}

	orderID := input.OrderID
	sale := models.LedgerTransaction{
		VendorID:    input.VendorID,
		OrderID:     &orderID,
		Type:        enums.TransactionTypeSale,
		AmountCents: input.Split.MerchandiseCents(),
		Currency:    input.Currency,
		Status:      enums.TransactionStatusCompleted,
		Description: fmt.Sprintf("sale for order %s", orderID),
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := repo.CreateTransaction(ctx, &sale); err != nil {
		return nil, false, fmt.Errorf("create sale transaction: %w", err)
	}

	cost := models.LedgerTransaction{
		VendorID:    input.VendorID,
		OrderID:     &orderID,
		Type:        enums.TransactionTypeFee,
		AmountCents: -input.Split.FeeAmountCents,
		Currency:    input.Currency,
		Status:      enums.TransactionStatusCompleted,
		Description: fmt.Sprintf("platform commission %s%% for order %s", input.Split.FeePercentage.String(), orderID),
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := repo.CreateTransaction(ctx, &cost); err != nil {
		return nil, false, fmt.Errorf("create fee transaction: %w", err)
	}

	return &SettlementRecord{Fee: *fee, Sale: sale, Cost: cost}, true, nil
}

func validateSettlement(input SettlementInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	if input.Split.VendorEarningsCents < 0 {
		return pkgerrors.New(pkgerrors.CodeSettlementUnderflow, "vendor earnings must be non-negative")
	}
	return nil
}

func (s *service) loadSettlement(ctx context.Context, repo Repository, fee *models.PlatformFee) (*SettlementRecord, error) {
	entries, err := repo.ListByOrderID(ctx, fee.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list settlement transactions: %w", err)
	}
	record := &SettlementRecord{Fee: *fee}
	for _, entry := range entries {
		switch entry.Type {
		case enums.TransactionTypeSale:
			record.Sale = entry
		case enums.TransactionTypeFee:
			record.Cost = entry
		case enums.TransactionTypePayout, enums.TransactionTypeReversal:
		}
	}
	return record, nil
}

// MarkCollected flips a pending fee to collected. It reports false when the fee
// was not pending, which lets duplicate delivery notifications become no-ops.
func (s *service) MarkCollected(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction required")
	}
	if fee == nil {
		return false, fmt.Errorf("platform fee required")
	}
	now := s.now()
	moved, err := s.repo.WithTx(tx).TransitionFee(ctx, fee.ID,
		[]enums.PlatformFeeStatus{enums.PlatformFeeStatusPending},
		enums.PlatformFeeStatusCollected, now)
	if err != nil {
		return false, fmt.Errorf("collect platform fee: %w", err)
	}
	return moved, nil
}

// RecordReversal appends the compensating entry for a settled order and marks
// its fee reversed. A fee that is already reversed yields the existing entry
// with created false.
func (s *service) RecordReversal(ctx context.Context, tx *gorm.DB, fee *models.PlatformFee, reason string) (*models.LedgerTransaction, bool, error) {
	if tx == nil {
		return nil, false, fmt.Errorf("transaction required")
	}
	if fee == nil {
		return nil, false, fmt.Errorf("platform fee required")
	}
	repo := s.repo.WithTx(tx)

	entries, err := repo.ListByOrderID(ctx, fee.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("list settlement transactions: %w", err)
	}
	var sale *models.LedgerTransaction
	for i := range entries {
		if entries[i].Type == enums.TransactionTypeSale {
			sale = &entries[i]
			break
		}
	}
	if sale == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "sale transaction not found for order").
			WithDetails(map[string]any{"order_id": fee.OrderID.String()})
	}

	if existing, err := repo.FindReversalOf(ctx, sale.ID); err != nil {
		return nil, false, fmt.Errorf("find reversal: %w", err)
	} else if existing != nil {
		return existing, false, nil
	}

	now := s.now()
	moved, err := repo.TransitionFee(ctx, fee.ID,
		[]enums.PlatformFeeStatus{enums.PlatformFeeStatusPending, enums.PlatformFeeStatusCollected},
		enums.PlatformFeeStatusReversed, now)
	if err != nil {
		return nil, false, fmt.Errorf("reverse platform fee: %w", err)
	}
	if !moved {
		return nil, false, pkgerrors.New(pkgerrors.CodeStateConflict, "platform fee already reversed").
			WithDetails(map[string]any{"order_id": fee.OrderID.String()})
	}

	description := fmt.Sprintf("reversal of order %s", fee.OrderID)
	if reason != "" {
		description = fmt.Sprintf("%s: %s", description, reason)
	}
	orderID := fee.OrderID
	saleID := sale.ID
	reversal := &models.LedgerTransaction{
		VendorID:    fee.VendorID,
		OrderID:     &orderID,
		ReversesID:  &saleID,
		Type:        enums.TransactionTypeReversal,
		AmountCents: -fee.VendorEarningsCents,
		Currency:    fee.Currency,
		Status:      enums.TransactionStatusCompleted,
		Description: description,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := repo.CreateTransaction(ctx, reversal); err != nil {
		return nil, false, fmt.Errorf("create reversal transaction: %w", err)
	}
	return reversal, true, nil
}

// RecordPayout appends the single payout entry for a paid payout. Repeated
// calls for the same payout return the original entry.
func (s *service) RecordPayout(ctx context.Context, tx *gorm.DB, payout *models.Payout) (*models.LedgerTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if payout == nil || payout.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout is required")
	}
	if payout.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByPayoutID(ctx, payout.ID)
	if err != nil {
		return nil, fmt.Errorf("find payout transaction: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	payoutID := payout.ID
	txn := &models.LedgerTransaction{
		VendorID:    payout.VendorID,
		PayoutID:    &payoutID,
		Type:        enums.TransactionTypePayout,
		AmountCents: -payout.AmountCents,
		Currency:    payout.Currency,
		Status:      enums.TransactionStatusCompleted,
		Description: fmt.Sprintf("payout %s to bank account %s", payout.ID, payout.BankAccountID),
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("create payout transaction: %w", err)
	}
	return txn, nil
}

func (s *service) FindFee(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PlatformFee, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	fee, err := s.repo.WithTx(tx).FindFeeByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find platform fee: %w", err)
	}
	return fee, nil
}

// ListTransactions pages through a vendor's ledger, newest first.
func (s *service) ListTransactions(ctx context.Context, vendorID uuid.UUID, filter ListFilter) (*TransactionPage, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", *filter.Type))
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, vendorID, filter, cursor, pagination.LimitWithBuffer(filter.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger transactions")
	}

	items, next := pagination.Trim(rows, filter.Limit, func(row models.LedgerTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &TransactionPage{Items: items, NextCursor: next}, nil
}
