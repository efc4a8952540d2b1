package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// OrderSettledEvent is the Order Service notification that an order's payment succeeded.
type OrderSettledEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	VendorID      uuid.UUID           `json:"vendor_id"`
	TotalCents    int64               `json:"total_cents"`
	ShippingCents int64               `json:"shipping_cents"`
	Currency      enums.Currency      `json:"currency,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status,omitempty"`
}

// OrderStatusChangedEvent is the Order Service notification of a fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	VendorID  uuid.UUID         `json:"vendor_id"`
	OldStatus enums.OrderStatus `json:"old_status"`
	NewStatus enums.OrderStatus `json:"new_status"`
}

// SettlementRecordedEvent is emitted once per settled order.
type SettlementRecordedEvent struct {
	PlatformFeeID       uuid.UUID      `json:"platform_fee_id"`
	OrderID             uuid.UUID      `json:"order_id"`
	VendorID            uuid.UUID      `json:"vendor_id"`
	OrderAmountCents    int64          `json:"order_amount_cents"`
	FeeAmountCents      int64          `json:"fee_amount_cents"`
	VendorEarningsCents int64          `json:"vendor_earnings_cents"`
	Currency            enums.Currency `json:"currency"`
}

// EarningsReleasedEvent reports pending earnings becoming available on delivery.
type EarningsReleasedEvent struct {
	PlatformFeeID uuid.UUID `json:"platform_fee_id"`
	OrderID       uuid.UUID `json:"order_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	AmountCents   int64     `json:"amount_cents"`
	CollectedAt   time.Time `json:"collected_at"`
}

// SettlementReversedEvent reports a cancelled or refunded order.
type SettlementReversedEvent struct {
	PlatformFeeID uuid.UUID `json:"platform_fee_id"`
	OrderID       uuid.UUID `json:"order_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AmountCents   int64     `json:"amount_cents"`
	Reason        string    `json:"reason,omitempty"`
	FromAvailable bool      `json:"from_available"`
}

// PayoutStatusEvent is emitted for every payout lifecycle transition.
type PayoutStatusEvent struct {
	PayoutID      uuid.UUID          `json:"payout_id"`
	VendorID      uuid.UUID          `json:"vendor_id"`
	BankAccountID uuid.UUID          `json:"bank_account_id"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      enums.Currency     `json:"currency"`
	Status        enums.PayoutStatus `json:"status"`
	RailReference string             `json:"rail_reference,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// BankAccountVerifiedEvent reports a payout destination passing verification.
type BankAccountVerifiedEvent struct {
	BankAccountID uuid.UUID `json:"bank_account_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// ReviewItemOpenedEvent alerts operators to a ledger anomaly.
type ReviewItemOpenedEvent struct {
	ReviewItemID         uuid.UUID            `json:"review_item_id"`
	Kind                 enums.ReviewItemKind `json:"kind"`
	VendorID             uuid.UUID            `json:"vendor_id"`
	OrderID              *uuid.UUID           `json:"order_id,omitempty"`
	PayoutID             *uuid.UUID           `json:"payout_id,omitempty"`
	AttemptedAmountCents int64                `json:"attempted_amount_cents"`
	Message              string               `json:"message"`
}

// VendorBalanceDriftedEvent reports a reconciliation mismatch for a vendor.
type VendorBalanceDriftedEvent struct {
	VendorID      uuid.UUID `json:"vendor_id"`
	Check         string    `json:"check"`
	ExpectedCents int64     `json:"expected_cents"`
	ActualCents   int64     `json:"actual_cents"`
}
