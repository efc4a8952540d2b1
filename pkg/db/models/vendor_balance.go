package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// VendorBalance is the per-vendor running balance. Version guards every update.
type VendorBalance struct {
	VendorID            uuid.UUID      `gorm:"column:vendor_id;type:uuid;primaryKey"`
	AvailableCents      int64          `gorm:"column:available_cents;not null;default:0"`
	PendingCents        int64          `gorm:"column:pending_cents;not null;default:0"`
	ReservedCents       int64          `gorm:"column:reserved_cents;not null;default:0"`
	Currency            enums.Currency `gorm:"column:currency;type:text;not null"`
	LifetimeVolumeCents int64          `gorm:"column:lifetime_volume_cents;not null;default:0"`
	Version             int64          `gorm:"column:version;not null;default:0"`
	LastUpdated         time.Time      `gorm:"column:last_updated;not null"`
}

// TotalCents is the sum of every bucket still owed to the vendor.
func (b VendorBalance) TotalCents() int64 {
	return b.AvailableCents + b.PendingCents + b.ReservedCents
}
