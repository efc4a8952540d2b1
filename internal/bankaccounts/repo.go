package bankaccounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
)

// Repository persists vendor payout destinations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.BankAccount) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error)
	FindDefault(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.BankAccount, error)
	ClearDefault(ctx context.Context, vendorID uuid.UUID) error
	MarkDefault(ctx context.Context, id uuid.UUID) error
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
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

func (r *repository) Create(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BankAccount, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindDefault(ctx context.Context, vendorID uuid.UUID) (*models.BankAccount, error) {
	return r.first(r.db.WithContext(ctx).Where("vendor_id = ? AND is_default = ?", vendorID, true))
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.BankAccount, error) {
	var rows []models.BankAccount
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ClearDefault(ctx context.Context, vendorID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("vendor_id = ? AND is_default = ?", vendorID, true).
		Update("is_default", false).Error
}

func (r *repository) MarkDefault(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ?", id).
		Update("is_default", true).Error
}

// MarkVerified stamps verified_at once; re-verifying keeps the first timestamp.
func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.BankAccount{}).
		Where("id = ? AND verified_at IS NULL", id).
		Update("verified_at", at).Error
}

func (r *repository) first(query *gorm.DB) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := query.First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
