package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// Payout is a disbursement of available balance to a vendor bank account.
type Payout struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID      uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;index:idx_payouts_vendor_created,priority:1"`
	BankAccountID uuid.UUID          `gorm:"column:bank_account_id;type:uuid;not null"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	Currency      enums.Currency     `gorm:"column:currency;type:text;not null"`
	Status        enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Method        enums.PayoutMethod `gorm:"column:method;type:text;not null;default:'bank_transfer'"`
	RailReference *string            `gorm:"column:rail_reference"`
	FailureReason *string            `gorm:"column:failure_reason"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime;index:idx_payouts_vendor_created,priority:2"`
	ProcessedAt   *time.Time         `gorm:"column:processed_at"`
	PaidAt        *time.Time         `gorm:"column:paid_at"`
	FailedAt      *time.Time         `gorm:"column:failed_at"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
