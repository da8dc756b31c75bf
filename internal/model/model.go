// Package model defines the core data structures for the vault yield analyzer.
package model

import (
	"math/big"
	"time"
)

// InteractionKind distinguishes the two ledger event types a depositor can emit.
type InteractionKind string

const (
	// Deposit adds shares to the position in exchange for underlying assets.
	Deposit InteractionKind = "deposit"

	// Withdraw burns shares from the position and returns underlying assets.
	Withdraw InteractionKind = "withdraw"
)

// BlockPoint anchors a moment in chain history: a block number and its timestamp.
type BlockPoint struct {
	Block uint64    `json:"block"`
	Time  time.Time `json:"time"`
}

// Interaction is one deposit or withdraw event of the analyzed user.
// Deltas are unsigned base-unit amounts; Kind carries the direction.
// Interactions are immutable once recorded.
type Interaction struct {
	Block       uint64          `json:"block"`
	Time        time.Time       `json:"time"`
	Kind        InteractionKind `json:"kind"`
	AssetsDelta *big.Int        `json:"assets_delta"`
	SharesDelta *big.Int        `json:"shares_delta"`
	TxHash      string          `json:"tx_hash,omitempty"`
}

// SignedShares returns the interaction's share delta with its direction applied:
// positive for deposits, negative for withdrawals.
func (i Interaction) SignedShares() *big.Int {
	if i.SharesDelta == nil {
		return new(big.Int)
	}
	if i.Kind == Withdraw {
		return new(big.Int).Neg(i.SharesDelta)
	}
	return new(big.Int).Set(i.SharesDelta)
}

// RewardAccrual is the amount of one reward asset accrued strictly within a
// single period's time window. PriceUSD is nil when no USD price is reported;
// such rewards are kept in native units and contribute zero USD value.
type RewardAccrual struct {
	Asset     string   `json:"asset"`
	RawAmount *big.Int `json:"raw_amount"`
	Decimals  uint8    `json:"decimals"`
	PriceUSD  *float64 `json:"price_usd,omitempty"`
}

// ValueUSD converts the accrual to USD, or zero when no price is available.
func (r RewardAccrual) ValueUSD() float64 {
	if r.PriceUSD == nil || r.RawAmount == nil {
		return 0
	}
	amount := new(big.Float).SetInt(r.RawAmount)
	div := new(big.Float).SetInt(pow10(int(r.Decimals)))
	units, _ := new(big.Float).Quo(amount, div).Float64()
	return units * *r.PriceUSD
}

// Period is one maximal interval during which the user's share balance was
// constant. Periods are created once by the engine, ordered by Index, and
// never mutated afterwards. Integer fields are exact base-unit amounts; the
// float fields are the human-readable percentages derived from them.
type Period struct {
	Index      int       `json:"index"`
	StartBlock uint64    `json:"start_block"`
	EndBlock   uint64    `json:"end_block"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	OpenEnded  bool      `json:"open_ended"`

	SharesHeld *big.Int `json:"shares_held"`
	StartValue *big.Int `json:"start_value"`
	EndValue   *big.Int `json:"end_value"`
	Interest   *big.Int `json:"interest"`

	InterestPercent float64 `json:"interest_percent"`
	StartValueUSD   float64 `json:"start_value_usd"`

	Rewards    []RewardAccrual `json:"rewards,omitempty"`
	RewardsUSD float64         `json:"rewards_usd"`

	NativeAPY  float64 `json:"native_apy"`
	RewardsAPR float64 `json:"rewards_apr"`
	TotalAPY   float64 `json:"total_apy"`

	// DepositedThrough sums deposit assetsDelta for all interactions up to and
	// including this period's opening interaction.
	DepositedThrough *big.Int `json:"deposited_through"`

	CumulativeInterest *big.Int `json:"cumulative_interest"`
	CumulativePercent  float64  `json:"cumulative_percent"`
}

// Duration returns the period's elapsed wall time.
func (p Period) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// AggregateMetrics folds the full period sequence into overall figures.
// Recomputed from the periods on demand; it has no independent lifecycle.
type AggregateMetrics struct {
	TotalInterest        *big.Int `json:"total_interest"`
	TotalInterestPercent float64  `json:"total_interest_percent"`
	TotalRewardsUSD      float64  `json:"total_rewards_usd"`
	WeightedNativeAPY    float64  `json:"weighted_native_apy"`
	WeightedRewardsAPR   float64  `json:"weighted_rewards_apr"`
	WeightedTotalAPY     float64  `json:"weighted_total_apy"`
	TotalDurationDays    float64  `json:"total_duration_days"`
	PeriodCount          int      `json:"period_count"`
}

// Reconciliation compares the period-by-period interest sum against the naive
// end-minus-start figure. PeriodInterest is authoritative: it attributes
// interest to each deposit's actual holding time, which the simple figure
// ignores.
type Reconciliation struct {
	PeriodInterest *big.Int `json:"period_interest"`
	SimpleInterest *big.Int `json:"simple_interest"`
	Delta          *big.Int `json:"delta"`
}

// DiagnosticKind classifies a diagnostics entry.
type DiagnosticKind string

const (
	DiagMissingPrice    DiagnosticKind = "missing_price"
	DiagSkippedInterval DiagnosticKind = "skipped_interval"
	DiagUnpricedReward  DiagnosticKind = "unpriced_reward"
	DiagRewardsError    DiagnosticKind = "rewards_unavailable"
	DiagImplausible     DiagnosticKind = "implausible_metric"
	DiagOverdraw        DiagnosticKind = "overdrawn_withdrawal"
)

// Diagnostic records one omission or anomaly encountered during an analysis
// run. Every dropped period or degraded answer produces an entry so that data
// loss is never silent.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	Block  uint64         `json:"block,omitempty"`
	Detail string         `json:"detail"`
}

// Analysis is the full output of one yield computation run.
type Analysis struct {
	RunID          string           `json:"run_id"`
	Vault          string           `json:"vault"`
	User           string           `json:"user"`
	Periods        []Period         `json:"periods"`
	Aggregate      AggregateMetrics `json:"aggregate"`
	Reconciliation Reconciliation   `json:"reconciliation"`
	Diagnostics    []Diagnostic     `json:"diagnostics,omitempty"`
	ComputedAt     time.Time        `json:"computed_at"`
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
