package enums

import "fmt"

// PayoutStatus tracks a disbursement through the payment rail.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = set[PayoutStatus]{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (s PayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	return validPayoutStatuses.has(s)
}

// Terminal reports whether no further transitions are allowed.
func (s PayoutStatus) Terminal() bool {
	switch s {
	case PayoutStatusPaid, PayoutStatusFailed:
		return true
	case PayoutStatusPending, PayoutStatusProcessing:
		return false
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	return validPayoutStatuses.parse("payout status", value)
}

// PayoutOutcome is the terminal result reported by the payment rail.
type PayoutOutcome string

const (
	PayoutOutcomePaid   PayoutOutcome = "paid"
	PayoutOutcomeFailed PayoutOutcome = "failed"
)

// IsValid reports whether the value is a known PayoutOutcome.
func (o PayoutOutcome) IsValid() bool {
	return o == PayoutOutcomePaid || o == PayoutOutcomeFailed
}

// ParsePayoutOutcome converts raw input into a PayoutOutcome.
func ParsePayoutOutcome(value string) (PayoutOutcome, error) {
	outcome := PayoutOutcome(value)
	if !outcome.IsValid() {
		return "", fmt.Errorf("invalid payout outcome %q", value)
	}
	return outcome, nil
}

// PayoutMethod identifies how funds leave the platform.
type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
)
