// Package balances maintains each vendor's available, pending and reserved funds.
package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/metrics"
)

// Movement describes what a status change did to the balance buckets.
type Movement string

const (
	MovementNone              Movement = "none"
	MovementReleased          Movement = "released"
	MovementReversedPending   Movement = "reversed_pending"
	MovementReversedAvailable Movement = "reversed_available"
)

// StatusChange is an order fulfillment transition together with the
// settlement facts needed to move its earnings.
type StatusChange struct {
	VendorID      uuid.UUID
	OrderID       uuid.UUID
	OldStatus     enums.OrderStatus
	NewStatus     enums.OrderStatus
	EarningsCents int64
	FeeStatus     enums.PlatformFeeStatus
}

// Service is the single writer of vendor balances. Mutations run on the
// caller's transaction and fail with ErrVersionConflict when the row moved
// underneath them.
type Service interface {
	ApplySettlement(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, currency enums.Currency, earningsCents int64) (*models.VendorBalance, error)
	ApplyOrderStatusChange(ctx context.Context, tx *gorm.DB, change StatusChange) (Movement, error)
	ReverseEarnings(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, earningsCents int64, feeStatus enums.PlatformFeeStatus) (Movement, error)
	ApplyPayout(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error)
	ReleaseReserved(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error)
	RestoreReserved(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error)
	GetBalance(ctx context.Context, vendorID uuid.UUID) (*models.VendorBalance, error)
	GetBalanceTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.VendorBalance, error)
	ListWithAvailableAtLeast(ctx context.Context, minAvailableCents int64, limit int) ([]models.VendorBalance, error)
	ListAll(ctx context.Context, afterVendorID uuid.UUID, limit int) ([]models.VendorBalance, error)
}

// ServiceParams wires the balance service.
type ServiceParams struct {
	Repository      Repository
	DefaultCurrency enums.Currency
	Metrics         *metrics.LedgerMetrics
}

type service struct {
	repo            Repository
	defaultCurrency enums.Currency
	metrics         *metrics.LedgerMetrics
	now             func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = enums.CurrencyMXN
	}
	if !currency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", currency)
	}
	return &service{
		repo:            params.Repository,
		defaultCurrency: currency,
		metrics:         params.Metrics,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// ApplySettlement credits newly settled earnings to pending and lifetime volume,
// creating the vendor's row on first use.
func (s *service) ApplySettlement(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, currency enums.Currency, earningsCents int64) (*models.VendorBalance, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	if earningsCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeSettlementUnderflow, "settlement earnings must be non-negative").
			WithDetails(map[string]any{"vendor_id": vendorID.String(), "attempted_cents": earningsCents})
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", currency))
	}
	if err := s.repo.WithTx(tx).EnsureExists(ctx, vendorID, currency, s.now()); err != nil {
		return nil, fmt.Errorf("ensure vendor balance: %w", err)
	}
	return s.mutate(ctx, tx, vendorID, "apply_settlement", func(next *models.VendorBalance) error {
		if next.Currency != currency {
			return pkgerrors.New(pkgerrors.CodeValidation, "settlement currency does not match vendor balance").
				WithDetails(map[string]any{"balance_currency": next.Currency, "settlement_currency": currency})
		}
		next.PendingCents += earningsCents
		next.LifetimeVolumeCents += earningsCents
		return nil
	})
}

// ApplyOrderStatusChange folds a fulfillment transition into the balances.
// Delivered releases pending earnings to available. Cancelled removes the
// earnings from whichever bucket holds them; delivered orders cannot be
// cancelled and go through ReverseEarnings as a refund instead.
func (s *service) ApplyOrderStatusChange(ctx context.Context, tx *gorm.DB, change StatusChange) (Movement, error) {
	if err := requireTx(tx); err != nil {
		return MovementNone, err
	}
	if !change.OldStatus.IsValid() || !change.NewStatus.IsValid() {
		return MovementNone, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"old_status": change.OldStatus, "new_status": change.NewStatus})
	}
	if change.EarningsCents < 0 {
		return MovementNone, pkgerrors.New(pkgerrors.CodeValidation, "earnings must be non-negative")
	}

	switch change.NewStatus {
	case enums.OrderStatusDelivered:
		if change.OldStatus == enums.OrderStatusCancelled {
			return MovementNone, stateConflict(change, "cancelled orders cannot be delivered")
		}
		if change.FeeStatus != enums.PlatformFeeStatusPending {
			return MovementNone, nil
		}
		_, err := s.mutate(ctx, tx, change.VendorID, "release_earnings", func(next *models.VendorBalance) error {
			if next.PendingCents < change.EarningsCents {
				return underflow(change.VendorID, "pending", next.PendingCents, change.EarningsCents)
			}
			next.PendingCents -= change.EarningsCents
			next.AvailableCents += change.EarningsCents
			return nil
		})
		if err != nil {
			return MovementNone, err
		}
		return MovementReleased, nil

	case enums.OrderStatusCancelled:
		switch change.OldStatus {
		case enums.OrderStatusCancelled:
			return MovementNone, nil
		case enums.OrderStatusDelivered:
			return MovementNone, stateConflict(change, "delivered orders must be refunded, not cancelled")
		case enums.OrderStatusPending, enums.OrderStatusProcessing, enums.OrderStatusShipped:
		}
		return s.ReverseEarnings(ctx, tx, change.VendorID, change.EarningsCents, change.FeeStatus)

	case enums.OrderStatusPending, enums.OrderStatusProcessing, enums.OrderStatusShipped:
		return MovementNone, nil
	}
	return MovementNone, nil
}

// ReverseEarnings removes settled earnings from pending (fee not yet collected)
// or available (collected). It never clamps: a shortfall is a BALANCE_UNDERFLOW.
func (s *service) ReverseEarnings(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, earningsCents int64, feeStatus enums.PlatformFeeStatus) (Movement, error) {
	if err := requireTx(tx); err != nil {
		return MovementNone, err
	}
	if earningsCents < 0 {
		return MovementNone, pkgerrors.New(pkgerrors.CodeValidation, "earnings must be non-negative")
	}

	var movement Movement
	switch feeStatus {
	case enums.PlatformFeeStatusPending:
		movement = MovementReversedPending
	case enums.PlatformFeeStatusCollected:
		movement = MovementReversedAvailable
	case enums.PlatformFeeStatusReversed:
		return MovementNone, nil
	default:
		return MovementNone, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid platform fee status %q", feeStatus))
	}

	_, err := s.mutate(ctx, tx, vendorID, "reverse_earnings", func(next *models.VendorBalance) error {
		if movement == MovementReversedPending {
			if next.PendingCents < earningsCents {
				return underflow(vendorID, "pending", next.PendingCents, earningsCents)
			}
			next.PendingCents -= earningsCents
			return nil
		}
		if next.AvailableCents < earningsCents {
			return underflow(vendorID, "available", next.AvailableCents, earningsCents)
		}
		next.AvailableCents -= earningsCents
		return nil
	})
	if err != nil {
		return MovementNone, err
	}
	return movement, nil
}

// ApplyPayout moves a payout amount from available into reserved. The check
// and the write happen against the same row version.
func (s *service) ApplyPayout(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	return s.mutate(ctx, tx, vendorID, "apply_payout", func(next *models.VendorBalance) error {
		if amountCents > next.AvailableCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "payout exceeds available balance").
				WithDetails(map[string]any{
					"vendor_id":       vendorID.String(),
					"available_cents": next.AvailableCents,
					"attempted_cents": amountCents,
				})
		}
		next.AvailableCents -= amountCents
		next.ReservedCents += amountCents
		return nil
	})
}

// ReleaseReserved drops a paid payout from reserved funds.
func (s *service) ReleaseReserved(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return s.mutate(ctx, tx, vendorID, "release_reserved", func(next *models.VendorBalance) error {
		if next.ReservedCents < amountCents {
			return underflow(vendorID, "reserved", next.ReservedCents, amountCents)
		}
		next.ReservedCents -= amountCents
		return nil
	})
}

// RestoreReserved returns a failed payout's funds to available.
func (s *service) RestoreReserved(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amountCents int64) (*models.VendorBalance, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return s.mutate(ctx, tx, vendorID, "restore_reserved", func(next *models.VendorBalance) error {
		if next.ReservedCents < amountCents {
			return underflow(vendorID, "reserved", next.ReservedCents, amountCents)
		}
		next.ReservedCents -= amountCents
		next.AvailableCents += amountCents
		return nil
	})
}

// GetBalance returns the vendor's balance, or a zero balance when the vendor
// has never settled an order.
func (s *service) GetBalance(ctx context.Context, vendorID uuid.UUID) (*models.VendorBalance, error) {
	return s.GetBalanceTx(ctx, nil, vendorID)
}

func (s *service) GetBalanceTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID) (*models.VendorBalance, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	balance, err := s.repo.WithTx(tx).Get(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor balance")
	}
	if balance == nil {
		return &models.VendorBalance{VendorID: vendorID, Currency: s.defaultCurrency}, nil
	}
	return balance, nil
}

func (s *service) ListWithAvailableAtLeast(ctx context.Context, minAvailableCents int64, limit int) ([]models.VendorBalance, error) {
	return s.repo.ListWithAvailableAtLeast(ctx, minAvailableCents, limit)
}

func (s *service) ListAll(ctx context.Context, afterVendorID uuid.UUID, limit int) ([]models.VendorBalance, error) {
	return s.repo.ListAll(ctx, afterVendorID, limit)
}

// mutate performs one guarded read-modify-write of the vendor's row.
func (s *service) mutate(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, operation string, apply func(next *models.VendorBalance) error) (*models.VendorBalance, error) {
	repo := s.repo.WithTx(tx)
	current, err := repo.Get(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor balance: %w", err)
	}
	if current == nil {
		empty := models.VendorBalance{VendorID: vendorID, Currency: s.defaultCurrency}
		if err := apply(&empty); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor balance not found").
			WithDetails(map[string]any{"vendor_id": vendorID.String()})
	}

	next := *current
	if err := apply(&next); err != nil {
		return nil, err
	}
	if next.AvailableCents < 0 || next.PendingCents < 0 || next.ReservedCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBalanceUnderflow, "balance would become negative").
			WithDetails(map[string]any{"vendor_id": vendorID.String(), "operation": operation})
	}
	next.LastUpdated = s.now()

	if err := repo.CompareAndSwap(ctx, *current, next); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.IncConflict(operation)
			return nil, err
		}
		return nil, fmt.Errorf("update vendor balance: %w", err)
	}
	next.Version = current.Version + 1
	return &next, nil
}

func requireTx(tx *gorm.DB) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return nil
}

func underflow(vendorID uuid.UUID, bucket string, balance, attempted int64) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeBalanceUnderflow, fmt.Sprintf("%s balance would become negative", bucket)).
		WithDetails(map[string]any{
			"vendor_id":       vendorID.String(),
			"bucket":          bucket,
			"balance_cents":   balance,
			"attempted_cents": attempted,
		})
}

func stateConflict(change StatusChange, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{
			"vendor_id":  change.VendorID.String(),
			"order_id":   change.OrderID.String(),
			"old_status": change.OldStatus,
			"new_status": change.NewStatus,
		})
}

// IsVersionConflict is the retry predicate for units of work that mutate balances.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// AsConflict converts an exhausted version conflict into a retryable CONFLICT error.
func AsConflict(err error) error {
	if IsVersionConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "vendor balance is busy, retry later")
	}
	return err
}
