// Package oracle implements the engine's external collaborators: on-chain
// price-per-share sampling, vault event scanning, and the off-chain rewards
// API client.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/vault-yield/internal/circuitbreaker"
	"github.com/yourorg/vault-yield/internal/model"
	"github.com/yourorg/vault-yield/internal/yield"
)

// vaultABI covers the single read the price oracle needs from an
// ERC-4626 vault.
const vaultABI = `[{"name":"convertToAssets","type":"function","stateMutability":"view","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"assets","type":"uint256"}]}]`

// ChainReader is the subset of the Ethereum client the oracles use.
// *ethclient.Client satisfies it.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// VaultPriceOracle samples an ERC-4626 vault's price-per-share at historical
// blocks via convertToAssets. Samples are rate-limited and checked by the
// price circuit breaker before they reach the engine.
type VaultPriceOracle struct {
	client   ChainReader
	vault    common.Address
	calldata []byte
	oneShare *big.Int
	limiter  *rate.Limiter
	breaker  *circuitbreaker.Breaker
	log      *logrus.Entry
}

// NewVaultPriceOracle builds an oracle for one vault. shareDecimals sizes the
// one-share probe amount. limiter and breaker may be nil to disable them.
func NewVaultPriceOracle(client ChainReader, vault common.Address, shareDecimals uint8, limiter *rate.Limiter, breaker *circuitbreaker.Breaker) (*VaultPriceOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse vault ABI: %w", err)
	}
	oneShare := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shareDecimals)), nil)
	calldata, err := parsed.Pack("convertToAssets", oneShare)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack convertToAssets: %w", err)
	}
	return &VaultPriceOracle{
		client:   client,
		vault:    vault,
		calldata: calldata,
		oneShare: oneShare,
		limiter:  limiter,
		breaker:  breaker,
		log:      logrus.WithField("component", "price-oracle"),
	}, nil
}

// PricePerShare returns underlying base units per share unit, scaled to WAD.
// Any failure — RPC error, pruned state, or a breaker rejection — means the
// sample is unavailable and the engine omits the affected period.
func (o *VaultPriceOracle) PricePerShare(ctx context.Context, block uint64) (*big.Int, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	out, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.vault,
		Data: o.calldata,
	}, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, fmt.Errorf("convertToAssets at block %d: %w", block, err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("convertToAssets at block %d: short return (%d bytes)", block, len(out))
	}

	assets := new(big.Int).SetBytes(out[:32])
	price := new(big.Int).Mul(assets, yield.WadScale)
	price.Quo(price, o.oneShare)

	if o.breaker != nil {
		if err := o.breaker.Observe(price); err != nil {
			o.log.WithError(err).WithField("block", block).Warn("price sample rejected")
			return nil, err
		}
	}

	o.log.WithFields(logrus.Fields{"block": block, "price": price.String()}).Debug("sampled price per share")
	return price, nil
}

// Current returns the latest block point, used to close an open position.
func (o *VaultPriceOracle) Current(ctx context.Context) (model.BlockPoint, error) {
	header, err := o.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return model.BlockPoint{}, fmt.Errorf("latest header: %w", err)
	}
	return model.BlockPoint{
		Block: header.Number.Uint64(),
		Time:  time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

// BlockTime resolves a block's timestamp.
func (o *VaultPriceOracle) BlockTime(ctx context.Context, block uint64) (time.Time, error) {
	header, err := o.client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", block, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}
