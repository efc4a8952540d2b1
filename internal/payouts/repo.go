package payouts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// Repository persists payouts and answers the eligibility scan.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	Transition(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, fields map[string]any) (bool, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Payout, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int) ([]models.Payout, error)
	ListEligibleVendorIDs(ctx context.Context, minAvailableCents int64, limit int) ([]uuid.UUID, error)
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

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

// Transition moves the payout to `to` only while it is still in one of `from`.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListEligibleVendorIDs joins balances with verified default bank accounts.
// It takes no locks; callers re-validate inside the payout transaction.
func (r *repository) ListEligibleVendorIDs(ctx context.Context, minAvailableCents int64, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Table("vendor_balances AS vb").
		Joins("JOIN bank_accounts AS ba ON ba.vendor_id = vb.vendor_id AND ba.is_default = ? AND ba.verified_at IS NOT NULL", true).
		Where("vb.available_cents >= ?", minAvailableCents).
		Order("vb.available_cents DESC").
		Order("vb.vendor_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("vb.vendor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) first(query *gorm.DB) (*models.Payout, error) {
	var payout models.Payout
	if err := query.First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}
