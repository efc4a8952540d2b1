package enums

// ReviewItemKind classifies ledger anomalies queued for operator review.
type ReviewItemKind string

const (
	ReviewItemSettlementUnderflow ReviewItemKind = "settlement_underflow"
	ReviewItemBalanceUnderflow    ReviewItemKind = "balance_underflow"
	ReviewItemBalanceDrift        ReviewItemKind = "balance_drift"
	ReviewItemUnknownPayout       ReviewItemKind = "unknown_payout"
)

var validReviewItemKinds = set[ReviewItemKind]{
	ReviewItemSettlementUnderflow,
	ReviewItemBalanceUnderflow,
	ReviewItemBalanceDrift,
	ReviewItemUnknownPayout,
}

func (k ReviewItemKind) IsValid() bool {
	return validReviewItemKinds.has(k)
}

// ParseReviewItemKind converts raw input into a ReviewItemKind.
func ParseReviewItemKind(value string) (ReviewItemKind, error) {
	return validReviewItemKinds.parse("review item kind", value)
}
