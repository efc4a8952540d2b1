package enums

// BankAccountHolderType distinguishes personal and business payout accounts.
type BankAccountHolderType string

const (
	BankAccountHolderIndividual BankAccountHolderType = "individual"
	BankAccountHolderCompany    BankAccountHolderType = "company"
)

var validBankAccountHolderTypes = set[BankAccountHolderType]{
	BankAccountHolderIndividual,
	BankAccountHolderCompany,
}

// IsValid reports whether the value is a known holder type.
func (h BankAccountHolderType) IsValid() bool {
	return validBankAccountHolderTypes.has(h)
}

// ParseBankAccountHolderType converts raw input into a BankAccountHolderType.
func ParseBankAccountHolderType(value string) (BankAccountHolderType, error) {
	return validBankAccountHolderTypes.parse("bank account holder type", value)
}
