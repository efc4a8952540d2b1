package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
)

// Repository persists vendor commission configuration.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error)
	Upsert(ctx context.Context, account *models.VendorAccount) error
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

func (r *repository) Get(ctx context.Context, vendorID uuid.UUID) (*models.VendorAccount, error) {
	var account models.VendorAccount
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) Upsert(ctx context.Context, account *models.VendorAccount) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"commission_percent", "currency", "updated_at"}),
		}).
		Create(account).Error
}
