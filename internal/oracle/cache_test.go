package oracle

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/vault-yield/internal/storage"
)

type stubOracle struct {
	prices map[uint64]*big.Int
	calls  int
}

func (s *stubOracle) PricePerShare(_ context.Context, block uint64) (*big.Int, error) {
	s.calls++
	p, ok := s.prices[block]
	if !ok {
		return nil, fmt.Errorf("no sample at block %d", block)
	}
	return p, nil
}

func TestCachingPriceOracle_ServesFromCache(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	inner := &stubOracle{prices: map[uint64]*big.Int{100: big.NewInt(1_020_000)}}
	cached := NewCachingPriceOracle(inner, store, "0xvault")
	ctx := context.Background()

	first, err := cached.PricePerShare(ctx, 100)
	require.NoError(t, err)
	second, err := cached.PricePerShare(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, 1, inner.calls, "second read must hit the cache")
}

func TestCachingPriceOracle_MissesPassThroughErrors(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	inner := &stubOracle{prices: map[uint64]*big.Int{}}
	cached := NewCachingPriceOracle(inner, store, "0xvault")

	_, err = cached.PricePerShare(context.Background(), 999)
	require.Error(t, err)
	// Failures are never cached.
	_, err = cached.PricePerShare(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
