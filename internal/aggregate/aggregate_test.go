package aggregate

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/vault-yield/internal/model"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func period(days float64, shares, interest *big.Int, startUSD, apy, apr float64) model.Period {
	return model.Period{
		StartTime:        t0,
		EndTime:          t0.Add(time.Duration(days * 24 * float64(time.Hour))),
		SharesHeld:       shares,
		DepositedThrough: new(big.Int).Set(shares),
		Interest:         interest,
		StartValueUSD:    startUSD,
		NativeAPY:        apy,
		RewardsAPR:       apr,
		TotalAPY:         apy + apr,
	}
}

func TestSummarize_Empty(t *testing.T) {
	agg := Summarize(nil, nil)
	assert.Equal(t, 0, agg.PeriodCount)
	assert.Equal(t, int64(0), agg.TotalInterest.Int64())
	assert.Equal(t, 0.0, agg.WeightedTotalAPY)
}

func TestSummarize_SinglePeriodIdentity(t *testing.T) {
	periods := []model.Period{
		period(30, wad(1000), wad(5), 1000, 6.1, 1.2),
	}

	agg := Summarize(periods, wad(1000))

	assert.InDelta(t, 6.1, agg.WeightedNativeAPY, 1e-12)
	assert.InDelta(t, 1.2, agg.WeightedRewardsAPR, 1e-12)
	assert.InDelta(t, 7.3, agg.WeightedTotalAPY, 1e-12)
	assert.Equal(t, wad(5).String(), agg.TotalInterest.String())
	assert.InDelta(t, 0.5, agg.TotalInterestPercent, 1e-9)
	assert.InDelta(t, 30, agg.TotalDurationDays, 1e-9)
}

func TestSummarize_WeightsByDurationAndValue(t *testing.T) {
	// Equal USD values, 3:1 duration split: the long period dominates 3:1.
	periods := []model.Period{
		period(30, wad(1000), wad(0), 1000, 12.0, 0),
		period(10, wad(1000), wad(0), 1000, 4.0, 0),
	}

	agg := Summarize(periods, wad(2000))

	// (12*30 + 4*10) / 40 = 10
	assert.InDelta(t, 10.0, agg.WeightedNativeAPY, 1e-9)
}

func TestSummarize_SharesFallbackWithoutUSD(t *testing.T) {
	// No USD pricing anywhere: weight is days x shares instead.
	periods := []model.Period{
		period(10, wad(3000), wad(0), 0, 9.0, 0),
		period(10, wad(1000), wad(0), 0, 1.0, 0),
	}

	agg := Summarize(periods, wad(4000))

	// (9*3 + 1*1) / 4 = 7
	assert.InDelta(t, 7.0, agg.WeightedNativeAPY, 1e-9)
}

func TestCumulate_ExactRunningSum(t *testing.T) {
	periods := []model.Period{
		period(10, wad(1000), wad(3), 0, 0, 0),
		period(10, wad(2000), wad(7), 0, 0, 0),
		period(10, wad(2000), wad(1), 0, 0, 0),
	}

	out := Cumulate(periods)
	require.Len(t, out, 3)

	// Re-sum independently and compare the integers exactly.
	expect := new(big.Int)
	for i, p := range out {
		expect.Add(expect, p.Interest)
		assert.Equal(t, expect.String(), p.CumulativeInterest.String(), "period %d", i)
	}
	assert.InDelta(t, 0.55, out[2].CumulativePercent, 1e-9) // 11/2000 * 100
}

func TestReconcile(t *testing.T) {
	rec := Reconcile(wad(2040), wad(2000), wad(40))

	assert.Equal(t, wad(40).String(), rec.PeriodInterest.String())
	assert.Equal(t, wad(40).String(), rec.SimpleInterest.String())
	assert.Equal(t, 0, rec.Delta.Sign())
}

func TestReconcile_NegativeSimpleInterest(t *testing.T) {
	// Full withdrawal before the analysis: current value zero, the simple
	// baseline goes negative while the period figure stays meaningful.
	rec := Reconcile(big.NewInt(0), wad(1000), wad(12))

	assert.Equal(t, -1, rec.SimpleInterest.Sign())
	assert.Equal(t, wad(12).String(), rec.PeriodInterest.String())
	assert.Equal(t, wad(1012).String(), rec.Delta.String())
}
