package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightedAverageReceiveBlendsCost(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 3, PlantID: 1}
	require.NoError(t, repo.UpsertWA(context.Background(), WARecord{Scope: scope, Quantity: dec("10"), CostPrice: dec("2.00")}))

	strategy := &WeightedAverageStrategy{repo: repo, policy: ShortfallReject}
	require.NoError(t, strategy.Receive(context.Background(), scope, dec("5"), dec("5.00"), nil))

	rec := repo.wa[scope]
	// (10*2 + 5*5) / 15 = 3.00
	require.True(t, rec.Quantity.Equal(dec("15")))
	require.True(t, rec.CostPrice.Equal(dec("3")), "got %s", rec.CostPrice)
}

func TestWeightedAverageFirstReceiptCreatesRecord(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 3, PlantID: 1}

	strategy := &WeightedAverageStrategy{repo: repo, policy: ShortfallReject}
	undo := &UndoLog{}
	require.NoError(t, strategy.Receive(context.Background(), scope, dec("7"), dec("1.2345"), undo))

	rec, err := repo.GetWAForUpdate(context.Background(), scope)
	require.NoError(t, err)
	require.True(t, rec.Quantity.Equal(dec("7")))
	require.True(t, rec.CostPrice.Equal(dec("1.2345")))

	// Undoing the first receipt deletes the lazily created record.
	require.NoError(t, undo.Revert(context.Background()))
	_, err = repo.GetWAForUpdate(context.Background(), scope)
	require.ErrorIs(t, err, ErrWARecordNotFound)
}

func TestWeightedAverageIssueKeepsCost(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 3, PlantID: 1}
	require.NoError(t, repo.UpsertWA(context.Background(), WARecord{Scope: scope, Quantity: dec("15"), CostPrice: dec("3.00")}))

	strategy := &WeightedAverageStrategy{repo: repo, policy: ShortfallReject}
	res, err := strategy.Issue(context.Background(), scope, dec("6"), nil)
	require.NoError(t, err)
	require.True(t, res.UnitCost.Equal(dec("3")))
	require.True(t, res.Consumed.Equal(dec("6")))

	rec := repo.wa[scope]
	require.True(t, rec.Quantity.Equal(dec("9")))
	require.True(t, rec.CostPrice.Equal(dec("3")), "issue must not move the cost")
}

func TestWeightedAverageIssueRejectsShortfall(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 3, PlantID: 1}
	require.NoError(t, repo.UpsertWA(context.Background(), WARecord{Scope: scope, Quantity: dec("2"), CostPrice: dec("3.00")}))

	strategy := &WeightedAverageStrategy{repo: repo, policy: ShortfallReject}
	_, err := strategy.Issue(context.Background(), scope, dec("5"), nil)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Rejected issues must not touch the record.
	require.True(t, repo.wa[scope].Quantity.Equal(dec("2")))
}

func TestWeightedAverageIssueBestEffortFloorsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	scope := CostScope{MaterialID: 3, PlantID: 1}
	require.NoError(t, repo.UpsertWA(context.Background(), WARecord{Scope: scope, Quantity: dec("2"), CostPrice: dec("3.00")}))

	strategy := &WeightedAverageStrategy{repo: repo, policy: ShortfallBestEffort}
	res, err := strategy.Issue(context.Background(), scope, dec("5"), nil)
	require.NoError(t, err)
	require.True(t, res.Consumed.Equal(dec("2")))
	require.True(t, res.Shortfall.Equal(dec("3")))
	require.True(t, repo.wa[scope].Quantity.IsZero())
}
