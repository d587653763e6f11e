package ticketing

import (
	"eventmitra/backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ProcessingFeeRate is charged on the subtotal before discount.
	ProcessingFeeRate = decimal.RequireFromString("0.02")
	// TaxRate (GST) is charged on the discounted subtotal.
	TaxRate = decimal.RequireFromString("0.18")
)

// ComputePricing derives the full breakdown from a subtotal and a discount.
// The discount is capped at the subtotal.
func ComputePricing(subtotal, discount int64) models.Pricing {
	if subtotal < 0 {
		subtotal = 0
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	fee := roundedShare(subtotal, ProcessingFeeRate)
	taxes := roundedShare(subtotal-discount, TaxRate)
	return models.Pricing{
		Subtotal:      subtotal,
		Discount:      discount,
		ProcessingFee: fee,
		Taxes:         taxes,
		Total:         subtotal - discount + fee + taxes,
	}
}

// MinorUnits converts a whole-unit amount into the gateway's minor unit.
func MinorUnits(amount int64) int64 {
	return amount * 100
}

// roundedShare returns amount*rate rounded half away from zero.
func roundedShare(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
