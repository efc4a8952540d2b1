package enums

// OrderEventType names the Order Service notifications the ledger consumes.
type OrderEventType string

const (
	OrderEventSettled       OrderEventType = "order_settled"
	OrderEventStatusChanged OrderEventType = "order_status_changed"
)

var validOrderEventTypes = set[OrderEventType]{
	OrderEventSettled,
	OrderEventStatusChanged,
}

// String implements fmt.Stringer.
func (e OrderEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a consumed order event.
func (e OrderEventType) IsValid() bool {
	return validOrderEventTypes.has(e)
}

// ParseOrderEventType converts raw input into OrderEventType.
func ParseOrderEventType(value string) (OrderEventType, error) {
	return validOrderEventTypes.parse("order event type", value)
}
