package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// ReviewItem is a ledger anomaly waiting for an operator.
type ReviewItem struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Kind                 enums.ReviewItemKind `gorm:"column:kind;type:text;not null"`
	VendorID             uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null;index:idx_ledger_review_items_vendor_id"`
	OrderID              *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	PayoutID             *uuid.UUID           `gorm:"column:payout_id;type:uuid"`
	AttemptedAmountCents int64                `gorm:"column:attempted_amount_cents;not null;default:0"`
	Message              string               `gorm:"column:message;not null"`
	Details              json.RawMessage      `gorm:"column:details;type:jsonb"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt           *time.Time           `gorm:"column:resolved_at"`
	ResolvedBy           *string              `gorm:"column:resolved_by"`
	ResolutionNote       *string              `gorm:"column:resolution_note"`
}

func (ReviewItem) TableName() string {
	return "ledger_review_items"
}

func (r *ReviewItem) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
