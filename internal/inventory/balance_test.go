package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanceAdjustCreatesRecord(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	key := StockKey{MaterialID: 1, PlantID: 1, LocationID: 10}

	changes, err := store.Adjust(context.Background(), key, BucketUnrestricted, dec("25"))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.True(t, changes[0].Created)

	rec, err := repo.GetBalanceForUpdate(context.Background(), key)
	require.NoError(t, err)
	require.True(t, rec.Unrestricted.Equal(dec("25")))
	require.True(t, rec.Total().Equal(dec("25")))
}

func TestBalanceAdjustBatchMirrorsAggregate(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	batched := StockKey{MaterialID: 1, PlantID: 1, LocationID: 10, BatchID: "B-001"}

	changes, err := store.Adjust(context.Background(), batched, BucketUnrestricted, dec("12"))
	require.NoError(t, err)
	require.Len(t, changes, 2)

	batchRec, err := repo.GetBalanceForUpdate(context.Background(), batched)
	require.NoError(t, err)
	require.True(t, batchRec.Unrestricted.Equal(dec("12")))

	aggRec, err := repo.GetBalanceForUpdate(context.Background(), batched.Aggregate())
	require.NoError(t, err)
	require.True(t, aggRec.Unrestricted.Equal(dec("12")))
}

func TestBalanceAdjustRejectsNegativeBucket(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	key := StockKey{MaterialID: 1, PlantID: 1, LocationID: 10}
	repo.seedBalance(key, BucketUnrestricted, dec("5"))

	_, err := store.Adjust(context.Background(), key, BucketUnrestricted, dec("-6"))
	require.ErrorIs(t, err, ErrNegativeBalance)

	var negErr *NegativeBalanceError
	require.ErrorAs(t, err, &negErr)
	require.Equal(t, BucketUnrestricted, negErr.Bucket)
	require.True(t, negErr.Have.Equal(dec("5")))

	// The failed adjustment must not write anything.
	rec, err := repo.GetBalanceForUpdate(context.Background(), key)
	require.NoError(t, err)
	require.True(t, rec.Unrestricted.Equal(dec("5")))
}

func TestBalanceAdjustMovesBetweenBuckets(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	key := StockKey{MaterialID: 1, PlantID: 1, LocationID: 10}
	repo.seedBalance(key, BucketUnrestricted, dec("30"))

	ctx := context.Background()
	_, err := store.Adjust(ctx, key, BucketUnrestricted, dec("-10"))
	require.NoError(t, err)
	_, err = store.Adjust(ctx, key, BucketReserved, dec("10"))
	require.NoError(t, err)

	rec, err := repo.GetBalanceForUpdate(ctx, key)
	require.NoError(t, err)
	require.True(t, rec.Unrestricted.Equal(dec("20")))
	require.True(t, rec.Reserved.Equal(dec("10")))
	// A paired transfer conserves the total.
	require.True(t, rec.Total().Equal(dec("30")))
}

func TestBalanceRestoreRewindsChange(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	key := StockKey{MaterialID: 1, PlantID: 1, LocationID: 10}
	repo.seedBalance(key, BucketUnrestricted, dec("8"))

	ctx := context.Background()
	changes, err := store.Adjust(ctx, key, BucketUnrestricted, dec("4"))
	require.NoError(t, err)

	for _, change := range changes {
		require.NoError(t, store.Restore(ctx, change))
	}
	rec, err := repo.GetBalanceForUpdate(ctx, key)
	require.NoError(t, err)
	require.True(t, rec.Unrestricted.Equal(dec("8")))
}

func TestBalanceAdjustUnknownBucket(t *testing.T) {
	repo := newMemoryRepo()
	store := NewBalanceStore(repo)
	_, err := store.Adjust(context.Background(), StockKey{MaterialID: 1, PlantID: 1, LocationID: 10}, Bucket("WRONG"), dec("1"))
	require.Error(t, err)
}
