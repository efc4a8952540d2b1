package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// Repository aggregates the ledger side of each vendor's balance.
type Repository interface {
	SumEarnings(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	SumCompletedTransactions(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

type vendorSum struct {
	VendorID uuid.UUID
	Total    int64
}

// SumEarnings totals vendor earnings over every platform fee, reversed ones
// included, since lifetime volume never decreases.
func (r *repository) SumEarnings(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []vendorSum
	err := r.db.WithContext(ctx).
		Table("platform_fees").
		Select("vendor_id, COALESCE(SUM(vendor_earnings_cents), 0) AS total").
		Where("vendor_id IN ?", vendorIDs).
		Group("vendor_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

func (r *repository) SumCompletedTransactions(ctx context.Context, vendorIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []vendorSum
	err := r.db.WithContext(ctx).
		Table("ledger_transactions").
		Select("vendor_id, COALESCE(SUM(amount_cents), 0) AS total").
		Where("vendor_id IN ? AND status = ?", vendorIDs, enums.TransactionStatusCompleted).
		Group("vendor_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMap(rows), nil
}

func toMap(rows []vendorSum) map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.VendorID] = row.Total
	}
	return out
}
