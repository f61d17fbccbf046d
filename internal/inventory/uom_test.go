package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-erp/tessera-erp/internal/masterdata/items"
)

func testItem() items.Item {
	return items.Item{
		ID:              1,
		Code:            "MAT-001",
		BaseUOM:         "PCS",
		CostingMethod:   items.CostingFIFO,
		StockControlled: true,
		UOMConversions: []items.UOMConversion{
			{AltUOM: "BOX", BaseQty: decimal.NewFromInt(12)},
			{AltUOM: "PACK", BaseQty: decimal.RequireFromString("2.5")},
		},
	}
}

func TestToBaseWithConversion(t *testing.T) {
	conv := ToBase(testItem(), "BOX", decimal.NewFromInt(7))
	require.True(t, conv.Matched)
	assert.True(t, conv.BaseQty.Equal(decimal.NewFromInt(84)), "got %s", conv.BaseQty)
}

func TestToBaseRoundTrip(t *testing.T) {
	item := testItem()
	base := ToBase(item, "BOX", decimal.NewFromInt(7))
	back := FromBase(item, "BOX", base.BaseQty)
	require.True(t, back.Matched)
	assert.True(t, back.BaseQty.Equal(decimal.NewFromInt(7)), "got %s", back.BaseQty)
}

func TestToBaseFractionalFactorRoundsTo3dp(t *testing.T) {
	conv := ToBase(testItem(), "PACK", decimal.RequireFromString("3.333"))
	require.True(t, conv.Matched)
	// 3.333 * 2.5 = 8.3325 -> 8.333 at 3dp (round half away from zero)
	assert.True(t, conv.BaseQty.Equal(decimal.RequireFromString("8.333")), "got %s", conv.BaseQty)

	back := FromBase(testItem(), "PACK", conv.BaseQty)
	diff := back.BaseQty.Sub(decimal.RequireFromString("3.333")).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.001")), "round-trip drift %s", diff)
}

func TestToBaseUnknownUOMFallsBack(t *testing.T) {
	conv := ToBase(testItem(), "PALLET", decimal.NewFromInt(4))
	require.False(t, conv.Matched)
	assert.True(t, conv.BaseQty.Equal(decimal.NewFromInt(4)))
}

func TestToBaseBaseUOMIsIdentity(t *testing.T) {
	conv := ToBase(testItem(), "PCS", decimal.RequireFromString("10.5"))
	require.True(t, conv.Matched)
	assert.True(t, conv.BaseQty.Equal(decimal.RequireFromString("10.5")))
}
