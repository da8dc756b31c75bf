// Package segment converts an interaction ledger into ordered, non-overlapping
// analysis period boundaries.
package segment

import (
	"fmt"
	"math/big"
	"time"

	"github.com/yourorg/vault-yield/internal/ledger"
	"github.com/yourorg/vault-yield/internal/model"
)

// Options holds the segmentation policy knobs. The minimum duration exists
// because the compounding annualization formula is numerically unstable over
// very short windows; the cutoff is a policy parameter, not a hard law.
type Options struct {
	// MinPeriodDuration is the shortest interval emitted as a yield-bearing
	// period. Intervals below it are skipped with a recorded reason.
	MinPeriodDuration time.Duration

	// Overdraw decides how withdrawals exceeding the balance are handled.
	Overdraw ledger.OverdrawPolicy
}

// DefaultOptions returns the reference policy: one hour minimum, overdraw as
// a hard error.
func DefaultOptions() Options {
	return Options{
		MinPeriodDuration: time.Hour,
		Overdraw:          ledger.OverdrawError,
	}
}

// Boundary describes one period before prices are sampled: the interval, the
// constant share balance held across it, and the deposit total up to its
// opening interaction.
type Boundary struct {
	StartBlock uint64
	EndBlock   uint64
	StartTime  time.Time
	EndTime    time.Time

	// SharesHeld is constant for the whole interval.
	SharesHeld *big.Int

	// DepositedThrough sums deposit assetsDelta for interactions up to and
	// including the opening one.
	DepositedThrough *big.Int

	// OpenEnded marks the implicit final period closed against the current
	// block rather than a ledger interaction.
	OpenEnded bool
}

// Duration returns the boundary's elapsed wall time.
func (b Boundary) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// SkipReason explains why an interval was not emitted as a period.
type SkipReason string

const (
	// SkipDegenerate marks an interval with zero elapsed blocks, e.g. two
	// interactions landing in the same block.
	SkipDegenerate SkipReason = "degenerate"

	// SkipTooShort marks an interval below the minimum duration.
	SkipTooShort SkipReason = "too_short"
)

// Skip records one dropped interval for the diagnostics surface.
type Skip struct {
	Reason     SkipReason
	StartBlock uint64
	EndBlock   uint64
	Duration   time.Duration
}

// Result is the segmenter output: emitted boundaries in order, dropped
// intervals, the final position, and whether any interaction overdrew under a
// non-error policy.
type Result struct {
	Boundaries []Boundary
	Skips      []Skip
	Final      *ledger.Position
	Overdrawn  []uint64
}

// Segment folds the interaction sequence (any input order) into period
// boundaries. After each interaction the running balance decides whether an
// interval opens: a flat position opens nothing; otherwise the interval runs
// to the next interaction, or to now for the last one (an open, still-active
// position). The fold is pure: same inputs, same output.
func Segment(interactions []model.Interaction, now model.BlockPoint, opts Options) (Result, error) {
	res := Result{Final: ledger.NewPosition()}
	if len(interactions) == 0 {
		return res, nil
	}

	sorted := ledger.Sort(interactions)
	pos := res.Final

	for i, in := range sorted {
		overdrawn, err := pos.Apply(in, opts.Overdraw)
		if err != nil {
			return Result{}, fmt.Errorf("segment: interaction %d: %w", i, err)
		}
		if overdrawn {
			res.Overdrawn = append(res.Overdrawn, in.Block)
		}

		if pos.Shares.Sign() <= 0 {
			// No active position; nothing accrues until the next deposit.
			continue
		}

		b := Boundary{
			StartBlock:       in.Block,
			StartTime:        in.Time,
			SharesHeld:       new(big.Int).Set(pos.Shares),
			DepositedThrough: new(big.Int).Set(pos.Deposited),
		}
		if i+1 < len(sorted) {
			next := sorted[i+1]
			b.EndBlock = next.Block
			b.EndTime = next.Time
		} else {
			b.EndBlock = now.Block
			b.EndTime = now.Time
			b.OpenEnded = true
		}

		if skip, dropped := classify(b, opts); dropped {
			res.Skips = append(res.Skips, skip)
			continue
		}
		res.Boundaries = append(res.Boundaries, b)
	}

	return res, nil
}

// classify decides whether a boundary is dropped, and why.
func classify(b Boundary, opts Options) (Skip, bool) {
	d := b.Duration()
	if b.EndBlock <= b.StartBlock || d <= 0 {
		return Skip{Reason: SkipDegenerate, StartBlock: b.StartBlock, EndBlock: b.EndBlock, Duration: d}, true
	}
	if d < opts.MinPeriodDuration {
		return Skip{Reason: SkipTooShort, StartBlock: b.StartBlock, EndBlock: b.EndBlock, Duration: d}, true
	}
	return Skip{}, false
}
