package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// LedgerTransaction is an append-only money movement for a vendor.
// Amounts are signed: sales are positive, fees, payouts and reversals negative.
type LedgerTransaction struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	VendorID    uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index:idx_ledger_transactions_vendor_created,priority:1"`
	OrderID     *uuid.UUID              `gorm:"column:order_id;type:uuid;index:idx_ledger_transactions_order_id"`
	PayoutID    *uuid.UUID              `gorm:"column:payout_id;type:uuid;uniqueIndex:ux_ledger_transactions_payout_id"`
	ReversesID  *uuid.UUID              `gorm:"column:reverses_id;type:uuid;uniqueIndex:ux_ledger_transactions_reverses_id"`
	Type        enums.TransactionType   `gorm:"column:type;type:text;not null"`
	AmountCents int64                   `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency          `gorm:"column:currency;type:text;not null"`
	Status      enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	Description string                  `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_ledger_transactions_vendor_created,priority:2"`
	CompletedAt *time.Time              `gorm:"column:completed_at"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

func (t *LedgerTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
