// Package validation runs post-computation sanity checks over computed
// periods and reports anomalies as diagnostics.
package validation

import (
	"fmt"

	"github.com/yourorg/vault-yield/internal/model"
)

// Options holds the plausibility thresholds for computed periods.
type Options struct {
	// MaxPlausibleAPY flags periods whose total APY exceeds this percentage.
	// Such figures usually mean a short window amplified by the compounding
	// exponent rather than real yield.
	MaxPlausibleAPY float64
}

// DefaultOptions returns the reference thresholds.
func DefaultOptions() Options {
	return Options{MaxPlausibleAPY: 1000}
}

// CheckPeriods scans the period sequence and returns one diagnostic per
// anomaly. It never modifies or drops periods; flagging is the whole job.
func CheckPeriods(periods []model.Period, opts Options) []model.Diagnostic {
	var diags []model.Diagnostic
	for _, p := range periods {
		if !p.EndTime.After(p.StartTime) {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagImplausible,
				Block:  p.StartBlock,
				Detail: fmt.Sprintf("period %d: end time not after start time", p.Index),
			})
		}
		if p.SharesHeld == nil || p.SharesHeld.Sign() <= 0 {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagImplausible,
				Block:  p.StartBlock,
				Detail: fmt.Sprintf("period %d: non-positive share balance", p.Index),
			})
		}
		if opts.MaxPlausibleAPY > 0 && p.TotalAPY > opts.MaxPlausibleAPY {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagImplausible,
				Block:  p.StartBlock,
				Detail: fmt.Sprintf("period %d: total APY %.2f%% exceeds plausibility ceiling %.2f%%", p.Index, p.TotalAPY, opts.MaxPlausibleAPY),
			})
		}
		for _, acc := range p.Rewards {
			if acc.PriceUSD == nil && acc.RawAmount != nil && acc.RawAmount.Sign() > 0 {
				diags = append(diags, model.Diagnostic{
					Kind:   model.DiagUnpricedReward,
					Block:  p.StartBlock,
					Detail: fmt.Sprintf("period %d: reward asset %s has no USD price; counted in native units only", p.Index, acc.Asset),
				})
			}
		}
	}
	return diags
}
