package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFOIssueConsumesOldestLotsFirst(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 1, PlantID: 1}
	lot1 := repo.seedLot(scope, 1, "5", "10.00")
	lot2 := repo.seedLot(scope, 2, "0", "11.00")
	lot3 := repo.seedLot(scope, 3, "10", "12.00")

	strategy := &FIFOStrategy{repo: repo, policy: ShortfallReject}
	res, err := strategy.Issue(context.Background(), scope, dec("8"), nil)
	require.NoError(t, err)

	// Lot 1 drains fully, lot 2 is skipped, lot 3 covers the remaining 3.
	require.True(t, repo.lots[lot1].AvailableQty.IsZero())
	require.True(t, repo.lots[lot2].AvailableQty.IsZero())
	require.True(t, repo.lots[lot3].AvailableQty.Equal(dec("7")), "got %s", repo.lots[lot3].AvailableQty)

	// (5*10 + 3*12) / 8 = 10.75
	require.True(t, res.UnitCost.Equal(dec("10.75")), "got %s", res.UnitCost)
	require.True(t, res.Consumed.Equal(dec("8")))
	require.True(t, res.Shortfall.IsZero())
}

func TestFIFOReceiveAppendsNextSequence(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 1, PlantID: 1}
	repo.seedLot(scope, 4, "3", "9.00")

	strategy := &FIFOStrategy{repo: repo, policy: ShortfallReject}
	err := strategy.Receive(context.Background(), scope, dec("20"), dec("9.5"), nil)
	require.NoError(t, err)

	lots, err := repo.ListLotsForUpdate(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	require.Equal(t, int64(5), lots[1].Sequence)
	require.True(t, lots[1].InitialQty.Equal(dec("20")))
	require.True(t, lots[1].AvailableQty.Equal(dec("20")))
	require.True(t, lots[1].CostPrice.Equal(dec("9.5")))
}

func TestFIFOIssueRejectPolicyLeavesLotsUntouched(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 1, PlantID: 1}
	lotID := repo.seedLot(scope, 1, "5", "10.00")

	strategy := &FIFOStrategy{repo: repo, policy: ShortfallReject}
	undo := &UndoLog{}
	_, err := strategy.Issue(context.Background(), scope, dec("8"), undo)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.True(t, stockErr.Requested.Equal(dec("8")))
	require.True(t, stockErr.Available.Equal(dec("5")))

	// The lot was consumed before the shortfall was detected; the caller
	// reverses through the undo log.
	require.NoError(t, undo.Revert(context.Background()))
	require.True(t, repo.lots[lotID].AvailableQty.Equal(dec("5")))
}

func TestFIFOIssueBestEffortReportsShortfall(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 1, PlantID: 1}
	repo.seedLot(scope, 1, "5", "10.00")

	strategy := &FIFOStrategy{repo: repo, policy: ShortfallBestEffort}
	res, err := strategy.Issue(context.Background(), scope, dec("8"), nil)
	require.NoError(t, err)
	require.True(t, res.Consumed.Equal(dec("5")))
	require.True(t, res.Shortfall.Equal(dec("3")))
	require.True(t, res.UnitCost.Equal(dec("10")))
}

func TestFIFOReceiveUndoRemovesLot(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 2, PlantID: 1}

	strategy := &FIFOStrategy{repo: repo, policy: ShortfallReject}
	undo := &UndoLog{}
	require.NoError(t, strategy.Receive(context.Background(), scope, dec("10"), dec("4.25"), undo))
	require.Len(t, repo.lots, 1)

	require.NoError(t, undo.Revert(context.Background()))
	require.Empty(t, repo.lots)
}

func TestFIFOIssueRejectsNonPositiveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	strategy := &FIFOStrategy{repo: repo, policy: ShortfallReject}
	_, err := strategy.Issue(context.Background(), CostScope{MaterialID: 1, PlantID: 1}, dec("0"), nil)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
