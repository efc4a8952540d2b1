package enums

// Currency represents the denomination of ledger amounts. Amounts are always
// stored in the currency's minor unit.
type Currency string

const (
	CurrencyMXN Currency = "MXN"
	CurrencyUSD Currency = "USD"
)

var validCurrencies = set[Currency]{
	CurrencyMXN,
	CurrencyUSD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	return validCurrencies.has(c)
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	return validCurrencies.parse("currency", value)
}
