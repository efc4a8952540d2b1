package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// BankAccount is a vendor payout destination.
type BankAccount struct {
	ID         uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	VendorID   uuid.UUID                   `gorm:"column:vendor_id;type:uuid;not null;index:idx_bank_accounts_vendor_id"`
	HolderName string                      `gorm:"column:holder_name;not null"`
	HolderType enums.BankAccountHolderType `gorm:"column:holder_type;type:text;not null"`
	BankName   string                      `gorm:"column:bank_name;not null"`
	Last4      string                      `gorm:"column:last4;type:varchar(4);not null"`
	Currency   enums.Currency              `gorm:"column:currency;type:text;not null"`
	Country    string                      `gorm:"column:country;type:varchar(2);not null"`
	IsDefault  bool                        `gorm:"column:is_default;not null;default:false"`
	VerifiedAt *time.Time                  `gorm:"column:verified_at"`
	CreatedAt  time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *BankAccount) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Verified reports whether the account passed verification.
func (a BankAccount) Verified() bool {
	return a.VerifiedAt != nil
}
