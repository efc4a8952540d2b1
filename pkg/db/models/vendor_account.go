package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// VendorAccount holds the commission configuration of a vendor.
type VendorAccount struct {
	VendorID          uuid.UUID       `gorm:"column:vendor_id;type:uuid;primaryKey"`
	CommissionPercent decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2);not null"`
	Currency          enums.Currency  `gorm:"column:currency;type:text;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
