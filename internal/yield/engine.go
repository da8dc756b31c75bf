package yield

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/vault-yield/internal/aggregate"
	"github.com/yourorg/vault-yield/internal/ledger"
	"github.com/yourorg/vault-yield/internal/model"
	"github.com/yourorg/vault-yield/internal/segment"
	"github.com/yourorg/vault-yield/internal/validation"
)

// ErrSampleUnavailable marks a price sample the oracle could not answer.
// The affected period is omitted with a diagnostic; the run continues.
var ErrSampleUnavailable = errors.New("price sample unavailable")

// PriceOracle answers the vault's price-per-share at a block, as underlying
// base units per share unit scaled by the calculator's Scale. From the
// engine's perspective each answer is a pure function of the block.
type PriceOracle interface {
	PricePerShare(ctx context.Context, block uint64) (*big.Int, error)
}

// RewardOracle answers reward accruals for a user over a time window and USD
// prices for individual assets. A nil oracle means no reward tracking.
type RewardOracle interface {
	Accruals(ctx context.Context, user string, from, to time.Time) ([]model.RewardAccrual, error)
	TokenPriceUSD(ctx context.Context, asset string) (float64, error)
}

// EngineConfig bundles the policy knobs for one analyzer instance.
type EngineConfig struct {
	Calc       Config
	Segment    segment.Options
	Validation validation.Options

	// UnderlyingAsset identifies the vault's underlying token for USD pricing
	// of the rewards APR denominator. Empty disables USD weighting.
	UnderlyingAsset string
}

// Engine runs the full analysis: segmentation, per-period valuation against
// the oracles, aggregation, and reconciliation. The computation itself is a
// single-threaded deterministic fold.
type Engine struct {
	cfg     EngineConfig
	price   PriceOracle
	rewards RewardOracle
	log     *logrus.Entry
}

// NewEngine wires an engine against its oracles. rewards may be nil.
func NewEngine(cfg EngineConfig, price PriceOracle, rewards RewardOracle) *Engine {
	return &Engine{
		cfg:     cfg,
		price:   price,
		rewards: rewards,
		log:     logrus.WithField("component", "yield-engine"),
	}
}

// ComputeYield analyzes the user's interaction ledger against the current
// block point. An empty ledger yields a zero-valued result, not an error.
// A missing price sample omits the affected period and records a diagnostic.
// An overdrawn withdrawal under the error policy fails the whole run.
func (e *Engine) ComputeYield(ctx context.Context, vault, user string, interactions []model.Interaction, now model.BlockPoint) (*model.Analysis, error) {
	ctx, span := otel.Tracer("vault-yield").Start(ctx, "ComputeYield")
	defer span.End()
	span.SetAttributes(
		attribute.String("vault", vault),
		attribute.Int("interactions", len(interactions)),
	)

	analysis := &model.Analysis{
		RunID:      uuid.NewString(),
		Vault:      vault,
		User:       user,
		Periods:    []model.Period{},
		ComputedAt: time.Now().UTC(),
	}

	if len(interactions) == 0 {
		analysis.Aggregate = aggregate.Summarize(nil, nil)
		analysis.Reconciliation = aggregate.Reconcile(new(big.Int), new(big.Int), new(big.Int))
		return analysis, nil
	}

	seg, err := segment.Segment(interactions, now, e.cfg.Segment)
	if err != nil {
		return nil, err
	}
	for _, skip := range seg.Skips {
		analysis.Diagnostics = append(analysis.Diagnostics, model.Diagnostic{
			Kind:   model.DiagSkippedInterval,
			Block:  skip.StartBlock,
			Detail: fmt.Sprintf("interval %d-%d dropped (%s, %s)", skip.StartBlock, skip.EndBlock, skip.Reason, skip.Duration),
		})
	}
	for _, block := range seg.Overdrawn {
		analysis.Diagnostics = append(analysis.Diagnostics, model.Diagnostic{
			Kind:   model.DiagOverdraw,
			Block:  block,
			Detail: fmt.Sprintf("withdrawal at block %d exceeded tracked balance (policy %s)", block, e.cfg.Segment.Overdraw),
		})
	}

	underlyingUSD := e.underlyingPriceUSD(ctx)
	samples := newSampleCache(e.price)

	for _, b := range seg.Boundaries {
		startPrice, err := samples.at(ctx, b.StartBlock)
		if err != nil {
			analysis.Diagnostics = append(analysis.Diagnostics, missingPriceDiag(b.StartBlock, b, err))
			span.AddEvent("period omitted", trace.WithAttributes(attribute.Int64("block", int64(b.StartBlock))))
			continue
		}
		endPrice, err := samples.at(ctx, b.EndBlock)
		if err != nil {
			analysis.Diagnostics = append(analysis.Diagnostics, missingPriceDiag(b.EndBlock, b, err))
			span.AddEvent("period omitted", trace.WithAttributes(attribute.Int64("block", int64(b.EndBlock))))
			continue
		}

		rewards := e.accruals(ctx, user, b, analysis)

		period := e.cfg.Calc.ComputePeriod(len(analysis.Periods), PeriodInput{
			Boundary:      b,
			StartPrice:    startPrice,
			EndPrice:      endPrice,
			Rewards:       rewards,
			UnderlyingUSD: underlyingUSD,
		})
		analysis.Periods = append(analysis.Periods, period)
	}

	analysis.Periods = aggregate.Cumulate(analysis.Periods)
	analysis.Diagnostics = append(analysis.Diagnostics,
		validation.CheckPeriods(analysis.Periods, e.cfg.Validation)...)

	totalDeposited := ledger.TotalDeposited(interactions)
	analysis.Aggregate = aggregate.Summarize(analysis.Periods, totalDeposited)
	analysis.Reconciliation = aggregate.Reconcile(
		e.currentValue(ctx, seg, samples, now, analysis),
		totalDeposited,
		analysis.Aggregate.TotalInterest,
	)

	span.SetAttributes(attribute.Int("periods", len(analysis.Periods)))
	e.log.WithFields(logrus.Fields{
		"run_id":   analysis.RunID,
		"periods":  len(analysis.Periods),
		"skipped":  len(seg.Skips),
		"interest": analysis.Aggregate.TotalInterest.String(),
	}).Info("analysis complete")

	return analysis, nil
}

// currentValue prices the final position snapshot at the current block for
// the reconciliation baseline. A closed position is worth zero; a missing
// now-sample degrades to zero with a diagnostic.
func (e *Engine) currentValue(ctx context.Context, seg segment.Result, samples *sampleCache, now model.BlockPoint, analysis *model.Analysis) *big.Int {
	if seg.Final.Flat() || seg.Final.Shares.Sign() < 0 {
		return new(big.Int)
	}
	price, err := samples.at(ctx, now.Block)
	if err != nil {
		analysis.Diagnostics = append(analysis.Diagnostics, model.Diagnostic{
			Kind:   model.DiagMissingPrice,
			Block:  now.Block,
			Detail: "current block price unavailable; reconciliation baseline degraded to zero",
		})
		return new(big.Int)
	}
	return mulDiv(seg.Final.Shares, price, e.cfg.Calc.Scale)
}

// accruals queries the reward oracle for one boundary window. Unavailable
// rewards are zero rewards, never an error.
func (e *Engine) accruals(ctx context.Context, user string, b segment.Boundary, analysis *model.Analysis) []model.RewardAccrual {
	if e.rewards == nil {
		return nil
	}
	accruals, err := e.rewards.Accruals(ctx, user, b.StartTime, b.EndTime)
	if err != nil {
		e.log.WithError(err).WithField("block", b.StartBlock).Warn("reward accrual lookup failed")
		analysis.Diagnostics = append(analysis.Diagnostics, model.Diagnostic{
			Kind:   model.DiagRewardsError,
			Block:  b.StartBlock,
			Detail: fmt.Sprintf("rewards unavailable for window %s-%s: %v", b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339), err),
		})
		return nil
	}
	return accruals
}

// underlyingPriceUSD resolves the USD price of the vault's underlying asset,
// zero when unknown. Without it reward APRs stay zero and aggregation falls
// back to share-based weights.
func (e *Engine) underlyingPriceUSD(ctx context.Context) float64 {
	if e.rewards == nil || e.cfg.UnderlyingAsset == "" {
		return 0
	}
	price, err := e.rewards.TokenPriceUSD(ctx, e.cfg.UnderlyingAsset)
	if err != nil {
		e.log.WithError(err).Debug("underlying USD price unavailable")
		return 0
	}
	return price
}

func missingPriceDiag(block uint64, b segment.Boundary, err error) model.Diagnostic {
	return model.Diagnostic{
		Kind:   model.DiagMissingPrice,
		Block:  block,
		Detail: fmt.Sprintf("period %d-%d omitted: %v", b.StartBlock, b.EndBlock, err),
	}
}

// sampleCache memoizes oracle answers per block so each boundary block is
// queried exactly once per run.
type sampleCache struct {
	oracle PriceOracle
	prices map[uint64]*big.Int
	errs   map[uint64]error
}

func newSampleCache(oracle PriceOracle) *sampleCache {
	return &sampleCache{
		oracle: oracle,
		prices: make(map[uint64]*big.Int),
		errs:   make(map[uint64]error),
	}
}

func (c *sampleCache) at(ctx context.Context, block uint64) (*big.Int, error) {
	if p, ok := c.prices[block]; ok {
		return p, nil
	}
	if err, ok := c.errs[block]; ok {
		return nil, err
	}
	p, err := c.oracle.PricePerShare(ctx, block)
	if err != nil {
		err = fmt.Errorf("block %d: %w: %v", block, ErrSampleUnavailable, err)
		c.errs[block] = err
		return nil, err
	}
	c.prices[block] = p
	return p, nil
}
