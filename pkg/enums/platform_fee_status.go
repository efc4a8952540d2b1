package enums

// PlatformFeeStatus tracks whether the commission of a settled order has been collected.
type PlatformFeeStatus string

const (
	PlatformFeeStatusPending   PlatformFeeStatus = "pending"
	PlatformFeeStatusCollected PlatformFeeStatus = "collected"
	PlatformFeeStatusReversed  PlatformFeeStatus = "reversed"
)

var validPlatformFeeStatuses = set[PlatformFeeStatus]{
	PlatformFeeStatusPending,
	PlatformFeeStatusCollected,
	PlatformFeeStatusReversed,
}

// String implements fmt.Stringer.
func (s PlatformFeeStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PlatformFeeStatus.
func (s PlatformFeeStatus) IsValid() bool {
	return validPlatformFeeStatuses.has(s)
}

// ParsePlatformFeeStatus converts raw input into a PlatformFeeStatus.
func ParsePlatformFeeStatus(value string) (PlatformFeeStatus, error) {
	return validPlatformFeeStatuses.parse("platform fee status", value)
}
