package payouts

import (
	"context"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/db/models"
)

// PaymentRail hands a payout to the bank-transfer provider. Implementations
// must treat payout.ID as an idempotency key. The outcome arrives later
// through Confirm.
type PaymentRail interface {
	Submit(ctx context.Context, payout models.Payout, account models.BankAccount) (string, error)
}

type manualRail struct{}

// NewManualRail returns a rail for operators who wire funds by hand and
// confirm through the webhook. It only produces a reference.
func NewManualRail() PaymentRail {
	return manualRail{}
}

func (manualRail) Submit(_ context.Context, payout models.Payout, _ models.BankAccount) (string, error) {
	return "manual-" + payout.ID.String(), nil
}
