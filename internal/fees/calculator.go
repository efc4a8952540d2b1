// Package fees splits an order total into platform commission and vendor earnings.
package fees

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/abdul-hamid-achik/luzimarket-ledger/pkg/errors"
)

var (
	hundred       = decimal.NewFromInt(100)
	maxPercentage = hundred
)

// Result is the outcome of a settlement split, in minor units.
type Result struct {
	OrderAmountCents    int64
	ShippingAmountCents int64
	FeePercentage       decimal.Decimal
	FeeAmountCents      int64
	VendorEarningsCents int64
}

// MerchandiseCents is the part of the order credited to the vendor before commission.
func (r Result) MerchandiseCents() int64 {
	return r.OrderAmountCents - r.ShippingAmountCents
}

// ComputeSettlement derives the platform fee and vendor earnings for an order.
// The fee is rounded half-up to the minor unit. Negative earnings are rejected.
func ComputeSettlement(orderAmountCents, shippingAmountCents int64, commissionPercent decimal.Decimal) (Result, error) {
	if orderAmountCents < 0 || shippingAmountCents < 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order and shipping amounts must be non-negative").
			WithDetails(map[string]any{
				"order_amount_cents":    orderAmountCents,
				"shipping_amount_cents": shippingAmountCents,
			})
	}
	if commissionPercent.IsNegative() || commissionPercent.GreaterThan(maxPercentage) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "commission percent must be between 0 and 100").
			WithDetails(map[string]any{"commission_percent": commissionPercent.String()})
	}

	fee := decimal.NewFromInt(orderAmountCents).
		Mul(commissionPercent).
		Div(hundred).
		Round(0).
		IntPart()
	earnings := orderAmountCents - fee - shippingAmountCents
	if earnings < 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeSettlementUnderflow, "fee and shipping exceed order amount").
			WithDetails(map[string]any{
				"order_amount_cents":    orderAmountCents,
				"shipping_amount_cents": shippingAmountCents,
				"fee_amount_cents":      fee,
				"vendor_earnings_cents": earnings,
			})
	}

	return Result{
		OrderAmountCents:    orderAmountCents,
		ShippingAmountCents: shippingAmountCents,
		FeePercentage:       commissionPercent,
		FeeAmountCents:      fee,
		VendorEarningsCents: earnings,
	}, nil
}
