package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeLandedCostAbsoluteDiscountTaxExclusive(t *testing.T) {
	lc := ComputeLandedCost(LandedCostInput{
		Quantity:     dec("10"),
		UnitPrice:    dec("5.00"),
		Discount:     dec("10"),
		DiscountType: DiscountAmount,
		TaxRate:      dec("0.07"),
	})
	require.True(t, lc.GrossValue.Equal(dec("50")))
	require.True(t, lc.DiscountAmount.Equal(dec("10")))
	// (50-10) * 0.07 = 2.80, final 42.80, unit 4.28
	require.True(t, lc.TaxAmount.Equal(dec("2.8")), "got %s", lc.TaxAmount)
	require.True(t, lc.FinalAmount.Equal(dec("42.8")))
	require.True(t, lc.UnitCost.Equal(dec("4.28")))
}

func TestComputeLandedCostPercentDiscountTaxInclusive(t *testing.T) {
	lc := ComputeLandedCost(LandedCostInput{
		Quantity:     dec("4"),
		UnitPrice:    dec("26.75"),
		Discount:     dec("10"),
		DiscountType: DiscountPercent,
		TaxRate:      dec("0.07"),
		TaxInclusive: true,
	})
	// gross 107, 10% discount 10.70, discounted 96.30
	require.True(t, lc.GrossValue.Equal(dec("107")))
	require.True(t, lc.DiscountAmount.Equal(dec("10.7")))
	// inclusive: tax backed out of 96.30 at 7% = 96.30 - 96.30/1.07 = 6.30
	require.True(t, lc.TaxAmount.Equal(dec("6.3")), "got %s", lc.TaxAmount)
	require.True(t, lc.FinalAmount.Equal(dec("96.3")))
	require.True(t, lc.UnitCost.Equal(dec("24.075")))
}

func TestComputeLandedCostDiscountClampedToGross(t *testing.T) {
	lc := ComputeLandedCost(LandedCostInput{
		Quantity:     dec("2"),
		UnitPrice:    dec("3.00"),
		Discount:     dec("100"),
		DiscountType: DiscountAmount,
	})
	require.True(t, lc.DiscountAmount.Equal(dec("6")))
	require.True(t, lc.FinalAmount.IsZero())
	require.True(t, lc.UnitCost.IsZero())
}

func TestComputeLandedCostZeroQuantity(t *testing.T) {
	lc := ComputeLandedCost(LandedCostInput{Quantity: dec("0"), UnitPrice: dec("9.99")})
	require.True(t, lc.UnitCost.IsZero())
	require.True(t, lc.GrossValue.IsZero())
}
