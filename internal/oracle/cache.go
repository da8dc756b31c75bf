package oracle

import (
	"context"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/vault-yield/internal/storage"
	"github.com/yourorg/vault-yield/internal/yield"
)

// CachingPriceOracle serves price samples from the SQLite cache and falls
// back to the wrapped oracle on a miss. Historical samples never change, so
// cache entries have no expiry.
type CachingPriceOracle struct {
	inner yield.PriceOracle
	store *storage.Store
	vault string
	log   *logrus.Entry
}

// NewCachingPriceOracle wraps inner with the persistent sample cache.
func NewCachingPriceOracle(inner yield.PriceOracle, store *storage.Store, vault string) *CachingPriceOracle {
	return &CachingPriceOracle{
		inner: inner,
		store: store,
		vault: vault,
		log:   logrus.WithField("component", "price-cache"),
	}
}

// PricePerShare implements yield.PriceOracle. Cache read/write failures are
// logged and bypassed; only the wrapped oracle decides availability.
func (c *CachingPriceOracle) PricePerShare(ctx context.Context, block uint64) (*big.Int, error) {
	if price, ok, err := c.store.Price(ctx, c.vault, block); err != nil {
		c.log.WithError(err).Warn("price cache read failed")
	} else if ok {
		return price, nil
	}

	price, err := c.inner.PricePerShare(ctx, block)
	if err != nil {
		return nil, err
	}
	if err := c.store.PutPrice(ctx, c.vault, block, price); err != nil {
		c.log.WithError(err).Warn("price cache write failed")
	}
	return price, nil
}
