package balances

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/dbtest"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
)

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repository: repo, DefaultCurrency: enums.CurrencyMXN})
	require.NoError(t, err)
	svc.(*service).now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func setup(t *testing.T) (*db.Client, Service) {
	t.Helper()
	client := dbtest.Open(t)
	return client, newTestService(t, NewRepository(client.DB()))
}

func inTx(t *testing.T, client *db.Client, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return client.WithTx(context.Background(), fn)
}

func settle(t *testing.T, client *db.Client, svc Service, vendorID uuid.UUID, earnings int64) {
	t.Helper()
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplySettlement(context.Background(), tx, vendorID, enums.CurrencyMXN, earnings)
		return err
	}))
}

func balanceOf(t *testing.T, svc Service, vendorID uuid.UUID) *models.VendorBalance {
	t.Helper()
	balance, err := svc.GetBalance(context.Background(), vendorID)
	require.NoError(t, err)
	return balance
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Repository: NewRepository(nil), DefaultCurrency: "EUR"})
	require.Error(t, err)
}

func TestApplySettlementCreditsPending(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()

	settle(t, client, svc, vendorID, 750)

	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(750), balance.PendingCents)
	assert.Equal(t, int64(0), balance.AvailableCents)
	assert.Equal(t, int64(750), balance.LifetimeVolumeCents)
	assert.Equal(t, int64(1), balance.Version)
	assert.Equal(t, enums.CurrencyMXN, balance.Currency)

	settle(t, client, svc, vendorID, 250)
	balance = balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(1000), balance.PendingCents)
	assert.Equal(t, int64(1000), balance.LifetimeVolumeCents)
	assert.Equal(t, int64(2), balance.Version)
}

func TestApplySettlementRejectsInvalidInput(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplySettlement(context.Background(), tx, vendorID, enums.CurrencyMXN, -1)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSettlementUnderflow))

	settle(t, client, svc, vendorID, 100)
	err = inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplySettlement(context.Background(), tx, vendorID, enums.CurrencyUSD, 100)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApplySettlement(context.Background(), nil, vendorID, enums.CurrencyMXN, 100)
	require.Error(t, err)
}

func TestDeliveredMovesPendingToAvailable(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)

	var movement Movement
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		var err error
		movement, err = svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OrderID:       uuid.New(),
			OldStatus:     enums.OrderStatusShipped,
			NewStatus:     enums.OrderStatusDelivered,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusPending,
		})
		return err
	}))

	assert.Equal(t, MovementReleased, movement)
	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(0), balance.PendingCents)
	assert.Equal(t, int64(750), balance.AvailableCents)
	assert.Equal(t, int64(750), balance.LifetimeVolumeCents)
}

func TestDeliveredWithCollectedFeeIsNoop(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)

	var movement Movement
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		var err error
		movement, err = svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OldStatus:     enums.OrderStatusDelivered,
			NewStatus:     enums.OrderStatusDelivered,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusCollected,
		})
		return err
	}))

	assert.Equal(t, MovementNone, movement)
	assert.Equal(t, int64(750), balanceOf(t, svc, vendorID).PendingCents)
}

func TestCancelRemovesEarningsFromHoldingBucket(t *testing.T) {
	tests := []struct {
		name          string
		feeStatus     enums.PlatformFeeStatus
		deliverFirst  bool
		wantMovement  Movement
		wantPending   int64
		wantAvailable int64
	}{
		{
			name:          "pending fee",
			feeStatus:     enums.PlatformFeeStatusPending,
			wantMovement:  MovementReversedPending,
			wantPending:   200,
			wantAvailable: 0,
		},
		{
			name:          "collected fee",
			feeStatus:     enums.PlatformFeeStatusCollected,
			deliverFirst:  true,
			wantMovement:  MovementReversedAvailable,
			wantPending:   200,
			wantAvailable: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, svc := setup(t)
			vendorID := uuid.New()
			settle(t, client, svc, vendorID, 750)
			settle(t, client, svc, vendorID, 200)

			if tt.deliverFirst {
				require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
					_, err := svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
						VendorID:      vendorID,
						OldStatus:     enums.OrderStatusShipped,
						NewStatus:     enums.OrderStatusDelivered,
						EarningsCents: 750,
						FeeStatus:     enums.PlatformFeeStatusPending,
					})
					return err
				}))
			}

			var movement Movement
			require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
				var err error
				movement, err = svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
					VendorID:      vendorID,
					OldStatus:     enums.OrderStatusShipped,
					NewStatus:     enums.OrderStatusCancelled,
					EarningsCents: 750,
					FeeStatus:     tt.feeStatus,
				})
				return err
			}))

			assert.Equal(t, tt.wantMovement, movement)
			balance := balanceOf(t, svc, vendorID)
			assert.Equal(t, tt.wantPending, balance.PendingCents)
			assert.Equal(t, tt.wantAvailable, balance.AvailableCents)
			assert.Equal(t, int64(200), balance.TotalCents())
			assert.Equal(t, int64(950), balance.LifetimeVolumeCents)
		})
	}
}

func TestCancelFromDeliveredIsStateConflict(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OldStatus:     enums.OrderStatusDelivered,
			NewStatus:     enums.OrderStatusCancelled,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusCollected,
		})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelUnderflowIsRejected(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 100)

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OldStatus:     enums.OrderStatusPending,
			NewStatus:     enums.OrderStatusCancelled,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusPending,
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow))

	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(100), balance.PendingCents)
}

func TestReverseEarningsWithoutBalanceRowUnderflows(t *testing.T) {
	client, svc := setup(t)

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ReverseEarnings(context.Background(), tx, uuid.New(), 10, enums.PlatformFeeStatusPending)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow))
}

func TestNonTerminalTransitionsDoNotMoveFunds(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)

	var movement Movement
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		var err error
		movement, err = svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OldStatus:     enums.OrderStatusProcessing,
			NewStatus:     enums.OrderStatusShipped,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusPending,
		})
		return err
	}))
	assert.Equal(t, MovementNone, movement)
	assert.Equal(t, int64(1), balanceOf(t, svc, vendorID).Version)
}

func TestPayoutReservationLifecycle(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      vendorID,
			OldStatus:     enums.OrderStatusShipped,
			NewStatus:     enums.OrderStatusDelivered,
			EarningsCents: 750,
			FeeStatus:     enums.PlatformFeeStatusPending,
		})
		return err
	}))

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyPayout(context.Background(), tx, vendorID, 751)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyPayout(context.Background(), tx, vendorID, 600)
		return err
	}))
	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(150), balance.AvailableCents)
	assert.Equal(t, int64(600), balance.ReservedCents)

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.RestoreReserved(context.Background(), tx, vendorID, 600)
		return err
	}))
	balance = balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(750), balance.AvailableCents)
	assert.Equal(t, int64(0), balance.ReservedCents)

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		if _, err := svc.ApplyPayout(context.Background(), tx, vendorID, 600); err != nil {
			return err
		}
		_, err := svc.ReleaseReserved(context.Background(), tx, vendorID, 600)
		return err
	}))
	balance = balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(150), balance.AvailableCents)
	assert.Equal(t, int64(0), balance.ReservedCents)
	assert.Equal(t, int64(750), balance.LifetimeVolumeCents)

	err = inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ReleaseReserved(context.Background(), tx, vendorID, 1)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBalanceUnderflow))
}

func TestApplyPayoutRejectsNonPositiveAmount(t *testing.T) {
	client, svc := setup(t)
	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyPayout(context.Background(), tx, uuid.New(), 0)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetBalanceForUnknownVendorIsZero(t *testing.T) {
	_, svc := setup(t)
	vendorID := uuid.New()

	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, vendorID, balance.VendorID)
	assert.Equal(t, int64(0), balance.TotalCents())
	assert.Equal(t, enums.CurrencyMXN, balance.Currency)

	_, err := svc.GetBalance(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type staleRepository struct {
	Repository
	snapshot models.VendorBalance
}

func (r *staleRepository) WithTx(tx *gorm.DB) Repository {
	return &staleRepository{Repository: r.Repository.WithTx(tx), snapshot: r.snapshot}
}

func (r *staleRepository) Get(context.Context, uuid.UUID) (*models.VendorBalance, error) {
	copied := r.snapshot
	return &copied, nil
}

func TestConcurrentWriterCausesVersionConflict(t *testing.T) {
	client, svc := setup(t)
	vendorID := uuid.New()
	settle(t, client, svc, vendorID, 750)

	snapshot := *balanceOf(t, svc, vendorID)
	settle(t, client, svc, vendorID, 50)

	stale := newTestService(t, &staleRepository{Repository: NewRepository(client.DB()), snapshot: snapshot})
	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := stale.ApplySettlement(context.Background(), tx, vendorID, enums.CurrencyMXN, 10)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	balance := balanceOf(t, svc, vendorID)
	assert.Equal(t, int64(800), balance.PendingCents)
	assert.Equal(t, int64(2), balance.Version)
}

func TestListWithAvailableAtLeast(t *testing.T) {
	client, svc := setup(t)
	rich := uuid.New()
	poor := uuid.New()
	for _, vendorID := range []uuid.UUID{rich, poor} {
		settle(t, client, svc, vendorID, 600)
	}
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.ApplyOrderStatusChange(context.Background(), tx, StatusChange{
			VendorID:      rich,
			OldStatus:     enums.OrderStatusShipped,
			NewStatus:     enums.OrderStatusDelivered,
			EarningsCents: 600,
			FeeStatus:     enums.PlatformFeeStatusPending,
		})
		return err
	}))

	eligible, err := svc.ListWithAvailableAtLeast(context.Background(), 500, 10)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, rich, eligible[0].VendorID)

	all, err := svc.ListAll(context.Background(), uuid.Nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAsConflict(t *testing.T) {
	err := AsConflict(fmt.Errorf("apply: %w", ErrVersionConflict))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeConflict).Retryable)

	other := errors.New("boom")
	assert.Same(t, other, AsConflict(other))
}
