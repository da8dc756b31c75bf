package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/vault-yield/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPriceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.Price(ctx, "0xvault", 100)
	require.NoError(t, err)
	assert.False(t, found)

	price, _ := new(big.Int).SetString("1020000000000000000", 10)
	require.NoError(t, s.PutPrice(ctx, "0xvault", 100, price))

	got, found, err := s.Price(ctx, "0xvault", 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, price.String(), got.String())

	// Samples are keyed per vault.
	_, found, err = s.Price(ctx, "0xother", 100)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutPrice_ReinsertIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutPrice(ctx, "0xvault", 100, big.NewInt(1000)))
	require.NoError(t, s.PutPrice(ctx, "0xvault", 100, big.NewInt(9999)))

	got, found, err := s.Price(ctx, "0xvault", 100)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1000", got.String())
}

func TestSaveRunAndRecentRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a := &model.Analysis{
			RunID:      uuid.NewString(),
			Vault:      "0xvault",
			User:       "0xuser",
			ComputedAt: base.Add(time.Duration(i) * time.Hour),
			Aggregate: model.AggregateMetrics{
				PeriodCount:      i + 1,
				TotalInterest:    big.NewInt(int64(i) * 100),
				WeightedTotalAPY: float64(i) * 1.5,
			},
		}
		require.NoError(t, s.SaveRun(ctx, a))
	}

	runs, err := s.RecentRuns(ctx, "0xvault", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, 3, runs[0].PeriodCount)
	assert.Equal(t, "200", runs[0].TotalInterest)
	assert.Equal(t, 2, runs[1].PeriodCount)

	runs, err = s.RecentRuns(ctx, "0xunknown", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
