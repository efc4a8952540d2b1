package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// PlatformFee records the commission split of exactly one settled order.
type PlatformFee struct {
	ID                  uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_platform_fees_order_id"`
	VendorID            uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null;index:idx_platform_fees_vendor_id"`
	OrderAmountCents    int64                   `gorm:"column:order_amount_cents;not null"`
	ShippingAmountCents int64                   `gorm:"column:shipping_amount_cents;not null;default:0"`
	FeePercentage       decimal.Decimal         `gorm:"column:fee_percentage;type:numeric(5,2);not null"`
	FeeAmountCents      int64                   `gorm:"column:fee_amount_cents;not null"`
	VendorEarningsCents int64                   `gorm:"column:vendor_earnings_cents;not null"`
	Currency            enums.Currency          `gorm:"column:currency;type:text;not null"`
	Status              enums.PlatformFeeStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CollectedAt         *time.Time              `gorm:"column:collected_at"`
	ReversedAt          *time.Time              `gorm:"column:reversed_at"`
	CreatedAt           time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (f *PlatformFee) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
