// Package yield computes per-period and aggregate realized yield for a vault
// depositor. Money amounts stay in scaled big.Int arithmetic end to end; only
// the final percentage and APY figures are floats.
package yield

import (
	"math"
	"math/big"

	"github.com/yourorg/vault-yield/internal/model"
	"github.com/yourorg/vault-yield/internal/segment"
)

// WadScale is the default fixed-point scale for price-per-share samples:
// prices are underlying base units per share unit, scaled by 10^18.
var WadScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SecondsPerYear is the default annualization basis (365 days).
const SecondsPerYear = 365 * 24 * 60 * 60

// Config carries the calculator's formula constants explicitly so boundary
// policies are testable rather than baked-in.
type Config struct {
	// Scale divides share×price products back to base units. Default 10^18.
	Scale *big.Int

	// SecondsPerYear is the annualization basis.
	SecondsPerYear float64

	// SignedInterest keeps losses as negative interest instead of clamping
	// per-period interest to zero. Default false, matching the clamped
	// reference behavior.
	SignedInterest bool

	// UnderlyingDecimals converts base-unit values to whole-unit USD terms.
	UnderlyingDecimals uint8
}

// DefaultConfig returns the reference constants.
func DefaultConfig() Config {
	return Config{
		Scale:              new(big.Int).Set(WadScale),
		SecondsPerYear:     SecondsPerYear,
		UnderlyingDecimals: 18,
	}
}

// PeriodInput is everything needed to value one boundary: the price samples
// at its ends, the reward accruals inside its window, and the underlying
// asset's USD price (zero when unknown).
type PeriodInput struct {
	Boundary      segment.Boundary
	StartPrice    *big.Int
	EndPrice      *big.Int
	Rewards       []model.RewardAccrual
	UnderlyingUSD float64
}

// ComputePeriod values one boundary. Position values are exact scaled-integer
// products; interest is end minus start, clamped to zero unless signed mode
// is on. The native APY compounds the period return over a year while the
// rewards APR projects linearly, and the total is their additive combination
// (two different compounding models; documented as an approximation).
func (c Config) ComputePeriod(index int, in PeriodInput) model.Period {
	b := in.Boundary

	startValue := mulDiv(b.SharesHeld, in.StartPrice, c.Scale)
	endValue := mulDiv(b.SharesHeld, in.EndPrice, c.Scale)

	interest := new(big.Int).Sub(endValue, startValue)
	if !c.SignedInterest && interest.Sign() < 0 {
		interest.SetInt64(0)
	}

	duration := b.Duration().Seconds()
	af := 0.0
	if duration > 0 {
		af = c.SecondsPerYear / duration
	}

	r := ratio(interest, startValue)
	nativeAPY := 0.0
	if af > 0 && r != 0 {
		nativeAPY = (math.Pow(1+r, af) - 1) * 100
	}

	rewardsUSD := 0.0
	for _, acc := range in.Rewards {
		rewardsUSD += acc.ValueUSD()
	}

	startValueUSD := baseToUnits(startValue, c.UnderlyingDecimals) * in.UnderlyingUSD
	rewardsAPR := 0.0
	if startValueUSD > 0 && af > 0 {
		rewardsAPR = rewardsUSD / startValueUSD * af * 100
	}

	return model.Period{
		Index:            index,
		StartBlock:       b.StartBlock,
		EndBlock:         b.EndBlock,
		StartTime:        b.StartTime,
		EndTime:          b.EndTime,
		OpenEnded:        b.OpenEnded,
		SharesHeld:       new(big.Int).Set(b.SharesHeld),
		StartValue:       startValue,
		EndValue:         endValue,
		Interest:         interest,
		InterestPercent:  r * 100,
		StartValueUSD:    startValueUSD,
		Rewards:          in.Rewards,
		RewardsUSD:       rewardsUSD,
		NativeAPY:        nativeAPY,
		RewardsAPR:       rewardsAPR,
		TotalAPY:         nativeAPY + rewardsAPR,
		DepositedThrough: new(big.Int).Set(b.DepositedThrough),
	}
}

// mulDiv computes a*b/div without overflow or float rounding.
func mulDiv(a, b, div *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, div)
}

// ratio returns num/den as a float, zero on a zero denominator. Used only at
// the edge where exact integers become reported percentages.
func ratio(num, den *big.Int) float64 {
	if den == nil || den.Sign() == 0 || num == nil {
		return 0
	}
	q, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return q
}

// baseToUnits converts a base-unit amount to whole asset units.
func baseToUnits(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	u, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(div)).Float64()
	return u
}
