package validation

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/vault-yield/internal/model"
)

var t0 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func healthyPeriod() model.Period {
	return model.Period{
		Index:      0,
		StartTime:  t0,
		EndTime:    t0.Add(24 * time.Hour),
		SharesHeld: big.NewInt(1000),
		TotalAPY:   4.2,
	}
}

func TestCheckPeriods_HealthyPeriodPasses(t *testing.T) {
	diags := CheckPeriods([]model.Period{healthyPeriod()}, DefaultOptions())
	assert.Empty(t, diags)
}

func TestCheckPeriods_FlagsInvertedTimes(t *testing.T) {
	p := healthyPeriod()
	p.EndTime = p.StartTime

	diags := CheckPeriods([]model.Period{p}, DefaultOptions())
	require.Len(t, diags, 1)
	assert.Equal(t, model.DiagImplausible, diags[0].Kind)
	assert.Contains(t, diags[0].Detail, "end time")
}

func TestCheckPeriods_FlagsNonPositiveShares(t *testing.T) {
	p := healthyPeriod()
	p.SharesHeld = big.NewInt(0)

	diags := CheckPeriods([]model.Period{p}, DefaultOptions())
	require.Len(t, diags, 1)
	assert.Equal(t, model.DiagImplausible, diags[0].Kind)
}

func TestCheckPeriods_FlagsAPYCeiling(t *testing.T) {
	p := healthyPeriod()
	p.TotalAPY = 5000

	diags := CheckPeriods([]model.Period{p}, DefaultOptions())
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Detail, "plausibility ceiling")

	// A zero ceiling disables the check.
	diags = CheckPeriods([]model.Period{p}, Options{MaxPlausibleAPY: 0})
	assert.Empty(t, diags)
}

func TestCheckPeriods_FlagsUnpricedRewards(t *testing.T) {
	p := healthyPeriod()
	priced := 1.5
	p.Rewards = []model.RewardAccrual{
		{Asset: "RWD", RawAmount: big.NewInt(100), PriceUSD: &priced},
		{Asset: "POINTS", RawAmount: big.NewInt(500)},
	}

	diags := CheckPeriods([]model.Period{p}, DefaultOptions())
	require.Len(t, diags, 1)
	assert.Equal(t, model.DiagUnpricedReward, diags[0].Kind)
	assert.Contains(t, diags[0].Detail, "POINTS")
}
