package balances

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// ErrVersionConflict means another writer updated the balance row first.
// The whole unit of work should be retried.
var ErrVersionConflict = errors.New("vendor balance version conflict")

// Repository is the only code that writes vendor_balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, vendorID uuid.UUID) (*models.VendorBalance, error)
	EnsureExists(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, at time.Time) error
	CompareAndSwap(ctx context.Context, current models.VendorBalance, next models.VendorBalance) error
	ListWithAvailableAtLeast(ctx context.Context, minAvailable int64, limit int) ([]models.VendorBalance, error)
	ListAll(ctx context.Context, afterVendorID uuid.UUID, limit int) ([]models.VendorBalance, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, vendorID uuid.UUID) (*models.VendorBalance, error) {
	var balance models.VendorBalance
	err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// EnsureExists lazily creates a zeroed row; concurrent creators are absorbed.
func (r *repository) EnsureExists(ctx context.Context, vendorID uuid.UUID, currency enums.Currency, at time.Time) error {
	row := models.VendorBalance{
		VendorID:    vendorID,
		Currency:    currency,
		LastUpdated: at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "vendor_id"}}, DoNothing: true}).
		Create(&row).Error
}

// CompareAndSwap writes next only if the row still carries current.Version.
func (r *repository) CompareAndSwap(ctx context.Context, current models.VendorBalance, next models.VendorBalance) error {
	res := r.db.WithContext(ctx).
		Model(&models.VendorBalance{}).
		Where("vendor_id = ? AND version = ?", current.VendorID, current.Version).
		Updates(map[string]any{
			"available_cents":       next.AvailableCents,
			"pending_cents":         next.PendingCents,
			"reserved_cents":        next.ReservedCents,
			"lifetime_volume_cents": next.LifetimeVolumeCents,
			"version":               current.Version + 1,
			"last_updated":          next.LastUpdated,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *repository) ListWithAvailableAtLeast(ctx context.Context, minAvailable int64, limit int) ([]models.VendorBalance, error) {
	var rows []models.VendorBalance
	query := r.db.WithContext(ctx).
		Where("available_cents >= ?", minAvailable).
		Order("available_cents DESC").
		Order("vendor_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAll(ctx context.Context, afterVendorID uuid.UUID, limit int) ([]models.VendorBalance, error) {
	var rows []models.VendorBalance
	query := r.db.WithContext(ctx).Order("vendor_id ASC")
	if afterVendorID != uuid.Nil {
		query = query.Where("vendor_id > ?", afterVendorID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
