package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/pagination"
)

// Repository persists platform fees and append-only ledger transactions.
// It deliberately has no way to update or delete a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindFeeByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PlatformFee, error)
	CreateFee(ctx context.Context, fee *models.PlatformFee) error
	TransitionFee(ctx context.Context, feeID uuid.UUID, from []enums.PlatformFeeStatus, to enums.PlatformFeeStatus, at time.Time) (bool, error)
	SavePoint(name string) error
	RollbackTo(name string) error
	CreateTransaction(ctx context.Context, txn *models.LedgerTransaction) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerTransaction, error)
	FindByPayoutID(ctx context.Context, payoutID uuid.UUID) (*models.LedgerTransaction, error)
	FindReversalOf(ctx context.Context, transactionID uuid.UUID) (*models.LedgerTransaction, error)
	List(ctx context.Context, vendorID uuid.UUID, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindFeeByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PlatformFee, error) {
	var fee models.PlatformFee
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&fee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fee, nil
}

func (r *repository) CreateFee(ctx context.Context, fee *models.PlatformFee) error {
	return r.db.WithContext(ctx).Create(fee).Error
}

// TransitionFee moves a fee to status `to` only while it is still in one of `from`.
// It reports false when another writer already moved it.
func (r *repository) TransitionFee(ctx context.Context, feeID uuid.UUID, from []enums.PlatformFeeStatus, to enums.PlatformFeeStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.PlatformFeeStatusCollected:
		updates["collected_at"] = at
	case enums.PlatformFeeStatusReversed:
		updates["reversed_at"] = at
	case enums.PlatformFeeStatusPending:
	}
	res := r.db.WithContext(ctx).Model(&models.PlatformFee{}).
		Where("id = ? AND status IN ?", feeID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SavePoint(name string) error {
	return r.db.SavePoint(name).Error
}

func (r *repository) RollbackTo(name string) error {
	return r.db.RollbackTo(name).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerTransaction, error) {
	var rows []models.LedgerTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindByPayoutID(ctx context.Context, payoutID uuid.UUID) (*models.LedgerTransaction, error) {
	return r.findOne(ctx, "payout_id = ? AND type = ?", payoutID, enums.TransactionTypePayout)
}

func (r *repository) FindReversalOf(ctx context.Context, transactionID uuid.UUID) (*models.LedgerTransaction, error) {
	return r.findOne(ctx, "reverses_id = ?", transactionID)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	err := r.db.WithContext(ctx).Where(query, args...).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) List(ctx context.Context, vendorID uuid.UUID, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Where("vendor_id = ?", vendorID)

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", filter.To.UTC())
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.LedgerTransaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
