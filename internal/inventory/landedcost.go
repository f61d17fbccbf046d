package inventory

import (
	"github.com/shopspring/decimal"
)

// DiscountType distinguishes absolute and percentage line discounts.
type DiscountType string

const (
	DiscountAmount  DiscountType = "AMOUNT"
	DiscountPercent DiscountType = "PERCENT"
)

// LandedCostInput carries the purchase-order line terms used to derive the
// unit cost booked at goods receipt.
type LandedCostInput struct {
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	DiscountType DiscountType
	TaxRate      decimal.Decimal // fraction, e.g. 0.07
	TaxInclusive bool
}

// LandedCost is the derived cost breakdown for one receipt line.
type LandedCost struct {
	GrossValue     decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	FinalAmount    decimal.Decimal
	UnitCost       decimal.Decimal
}

// ComputeLandedCost applies line discount and tax to the purchase price.
// The discount is clamped so it never exceeds the gross value. For
// tax-inclusive lines the tax is backed out of the discounted amount; for
// exclusive lines it is added on top.
func ComputeLandedCost(in LandedCostInput) LandedCost {
	if !in.Quantity.IsPositive() {
		return LandedCost{}
	}

	gross := round4(in.Quantity.Mul(in.UnitPrice))

	discount := decimal.Zero
	if in.Discount.IsPositive() {
		switch in.DiscountType {
		case DiscountPercent:
			discount = round4(gross.Mul(in.Discount).DivRound(decimal.NewFromInt(100), 4))
		default:
			discount = round4(in.Discount)
		}
		if discount.GreaterThan(gross) {
			discount = gross
		}
	}
	discounted := round4(gross.Sub(discount))

	tax := decimal.Zero
	final := discounted
	if in.TaxRate.IsPositive() {
		if in.TaxInclusive {
			// amount - amount/(1+rate): the tax share already inside the price.
			tax = round4(discounted.Sub(discounted.DivRound(decimal.NewFromInt(1).Add(in.TaxRate), 4)))
		} else {
			tax = round4(discounted.Mul(in.TaxRate))
			final = round4(discounted.Add(tax))
		}
	}

	return LandedCost{
		GrossValue:     gross,
		DiscountAmount: discount,
		TaxAmount:      tax,
		FinalAmount:    final,
		UnitCost:       round4(final.DivRound(in.Quantity, 4)),
	}
}
