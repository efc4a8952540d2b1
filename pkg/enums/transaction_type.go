package enums

// TransactionType classifies a ledger line.
type TransactionType string

const (
	TransactionTypeSale     TransactionType = "sale"
	TransactionTypeFee      TransactionType = "fee"
	TransactionTypePayout   TransactionType = "payout"
	TransactionTypeReversal TransactionType = "reversal"
)

var validTransactionTypes = set[TransactionType]{
	TransactionTypeSale,
	TransactionTypeFee,
	TransactionTypePayout,
	TransactionTypeReversal,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	return validTransactionTypes.has(t)
}

// Credits reports whether entries of this type carry a positive amount.
func (t TransactionType) Credits() bool {
	switch t {
	case TransactionTypeSale:
		return true
	case TransactionTypeFee, TransactionTypePayout, TransactionTypeReversal:
		return false
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	return validTransactionTypes.parse("transaction type", value)
}
