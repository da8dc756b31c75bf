// Package aggregate folds an ordered period sequence into overall
// duration/value-weighted metrics, the running cumulative-interest series,
// and the reconciliation against the naive baseline.
package aggregate

import (
	"math/big"

	"github.com/yourorg/vault-yield/internal/model"
)

// Summarize computes the weighted aggregate over all periods. The weight per
// period is durationSeconds × startValueUSD; when no USD data exists at all,
// it falls back to durationDays × shares so the weighting stays value- and
// time-proportional. nativeAPY and rewardsAPR are weighted independently and
// the total is their sum, consistent with the per-period additive combination.
func Summarize(periods []model.Period, totalDeposited *big.Int) model.AggregateMetrics {
	agg := model.AggregateMetrics{
		TotalInterest: new(big.Int),
		PeriodCount:   len(periods),
	}
	if len(periods) == 0 {
		return agg
	}

	useUSD := false
	for _, p := range periods {
		if p.StartValueUSD > 0 {
			useUSD = true
			break
		}
	}

	var totalWeight, weightedAPY, weightedAPR float64
	for _, p := range periods {
		agg.TotalInterest.Add(agg.TotalInterest, p.Interest)
		agg.TotalRewardsUSD += p.RewardsUSD

		days := p.Duration().Hours() / 24
		agg.TotalDurationDays += days

		w := weight(p, days, useUSD)
		totalWeight += w
		weightedAPY += p.NativeAPY * w
		weightedAPR += p.RewardsAPR * w
	}

	if totalWeight > 0 {
		agg.WeightedNativeAPY = weightedAPY / totalWeight
		agg.WeightedRewardsAPR = weightedAPR / totalWeight
		agg.WeightedTotalAPY = agg.WeightedNativeAPY + agg.WeightedRewardsAPR
	}

	if totalDeposited != nil && totalDeposited.Sign() > 0 {
		agg.TotalInterestPercent = ratio(agg.TotalInterest, totalDeposited) * 100
	}

	return agg
}

// weight returns the aggregation weight of one period.
func weight(p model.Period, days float64, useUSD bool) float64 {
	if useUSD {
		return p.Duration().Seconds() * p.StartValueUSD
	}
	shares, _ := new(big.Float).SetInt(p.SharesHeld).Float64()
	return days * shares
}

// Cumulate fills the running cumulative-interest series in index order:
// cumulativeInterest at period k is the exact integer sum of interest over
// periods 0..k, and the percentage divides by the deposits made through
// period k's start. The input slice is returned with the fields populated.
func Cumulate(periods []model.Period) []model.Period {
	running := new(big.Int)
	for i := range periods {
		running.Add(running, periods[i].Interest)
		periods[i].CumulativeInterest = new(big.Int).Set(running)
		if periods[i].DepositedThrough != nil && periods[i].DepositedThrough.Sign() > 0 {
			periods[i].CumulativePercent = ratio(running, periods[i].DepositedThrough) * 100
		}
	}
	return periods
}

// Reconcile compares the period-based interest sum against the baseline
// simpleInterest = currentValue − totalDeposited, which uses only the final
// position snapshot and ignores timing. The period figure is authoritative;
// the simple figure understates interest when later deposits had less time
// to accrue, and can go negative across interleaved withdrawals.
func Reconcile(currentValue, totalDeposited, periodInterest *big.Int) model.Reconciliation {
	simple := new(big.Int).Sub(currentValue, totalDeposited)
	return model.Reconciliation{
		PeriodInterest: new(big.Int).Set(periodInterest),
		SimpleInterest: simple,
		Delta:          new(big.Int).Sub(periodInterest, simple),
	}
}

func ratio(num, den *big.Int) float64 {
	if den == nil || den.Sign() == 0 {
		return 0
	}
	q, _ := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den)).Float64()
	return q
}
