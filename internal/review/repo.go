package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
)

// Repository persists ledger review items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.ReviewItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReviewItem, error)
	ListOpen(ctx context.Context, limit int) ([]models.ReviewItem, error)
	Resolve(ctx context.Context, id uuid.UUID, actor, note string, at time.Time) (bool, error)
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

func (r *repository) Create(ctx context.Context, item *models.ReviewItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReviewItem, error) {
	var item models.ReviewItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListOpen(ctx context.Context, limit int) ([]models.ReviewItem, error) {
	var rows []models.ReviewItem
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Resolve closes an open item. It reports false when the item was already resolved.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, actor, note string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReviewItem{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at":     at,
			"resolved_by":     actor,
			"resolution_note": note,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
