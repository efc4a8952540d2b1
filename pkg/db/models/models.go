package models

// All lists every persisted model, in dependency order, for AutoMigrate on
// SQLite dev and test databases. Postgres schemas come from goose migrations.
func All() []any {
	return []any{
		&VendorAccount{},
		&BankAccount{},
		&PlatformFee{},
		&VendorBalance{},
		&Payout{},
		&LedgerTransaction{},
		&ReviewItem{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
