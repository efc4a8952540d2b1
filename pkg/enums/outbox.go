package enums

// OutboxAggregateType identifies the ledger aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregatePlatformFee   OutboxAggregateType = "platform_fee"
	AggregatePayout        OutboxAggregateType = "payout"
	AggregateVendorBalance OutboxAggregateType = "vendor_balance"
	AggregateBankAccount   OutboxAggregateType = "bank_account"
	AggregateReviewItem    OutboxAggregateType = "ledger_review_item"
)

var validAggregateTypes = set[OutboxAggregateType]{
	AggregatePlatformFee,
	AggregatePayout,
	AggregateVendorBalance,
	AggregateBankAccount,
	AggregateReviewItem,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return validAggregateTypes.has(a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return validAggregateTypes.parse("aggregate type", value)
}

// OutboxEventType names the ledger side effects published downstream.
type OutboxEventType string

const (
	EventSettlementRecorded   OutboxEventType = "settlement_recorded"
	EventEarningsReleased     OutboxEventType = "earnings_released"
	EventSettlementReversed   OutboxEventType = "settlement_reversed"
	EventPayoutCreated        OutboxEventType = "payout_created"
	EventPayoutProcessing     OutboxEventType = "payout_processing"
	EventPayoutPaid           OutboxEventType = "payout_paid"
	EventPayoutFailed         OutboxEventType = "payout_failed"
	EventBankAccountVerified  OutboxEventType = "bank_account_verified"
	EventReviewItemOpened     OutboxEventType = "ledger_review_item_opened"
	EventVendorBalanceDrifted OutboxEventType = "vendor_balance_drifted"
)

var validOutboxEventTypes = set[OutboxEventType]{
	EventSettlementRecorded,
	EventEarningsReleased,
	EventSettlementReversed,
	EventPayoutCreated,
	EventPayoutProcessing,
	EventPayoutPaid,
	EventPayoutFailed,
	EventBankAccountVerified,
	EventReviewItemOpened,
	EventVendorBalanceDrifted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return validOutboxEventTypes.has(e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return validOutboxEventTypes.parse("event type", value)
}
