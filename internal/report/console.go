// Package report renders an analysis to a console: a compact one-liner or a
// full period table with aggregate summary, reconciliation and diagnostics.
package report

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/yourorg/vault-yield/internal/model"
)

// Console writes analysis reports to an io.Writer.
type Console struct {
	out           io.Writer
	full          bool
	assetDecimals uint8
}

// NewConsole creates a renderer. full selects the period table over the
// compact line; assetDecimals formats base-unit amounts.
func NewConsole(out io.Writer, full bool, assetDecimals uint8) *Console {
	return &Console{out: out, full: full, assetDecimals: assetDecimals}
}

// Render prints the analysis in the configured mode.
func (c *Console) Render(a *model.Analysis) {
	if c.full {
		c.renderFull(a)
	} else {
		c.renderCompact(a)
	}
}

// renderCompact prints the essentials in one line.
func (c *Console) renderCompact(a *model.Analysis) {
	fmt.Fprintf(c.out, "[%s] %s/%s: %d periods over %.1fd | interest %s (%.4f%%) | APY %.2f%% (+%.2f%% rewards) | simple delta %s\n",
		a.ComputedAt.Format("15:04:05"),
		shorten(a.Vault), shorten(a.User),
		a.Aggregate.PeriodCount,
		a.Aggregate.TotalDurationDays,
		c.amount(a.Aggregate.TotalInterest),
		a.Aggregate.TotalInterestPercent,
		a.Aggregate.WeightedNativeAPY,
		a.Aggregate.WeightedRewardsAPR,
		c.amount(a.Reconciliation.Delta),
	)
}

// renderFull prints the period table, the aggregate summary, the
// reconciliation and every diagnostic.
func (c *Console) renderFull(a *model.Analysis) {
	fmt.Fprintf(c.out, "\n=== Yield analysis %s — vault %s, user %s ===\n",
		a.RunID, shorten(a.Vault), shorten(a.User))

	if len(a.Periods) == 0 {
		fmt.Fprintln(c.out, "no yield-bearing periods")
	} else {
		c.printPeriods(a.Periods)
	}

	agg := a.Aggregate
	fmt.Fprintf(c.out, "\nTotal interest:    %s (%.4f%% of deposits)\n", c.amount(agg.TotalInterest), agg.TotalInterestPercent)
	fmt.Fprintf(c.out, "Total rewards:     $%.2f\n", agg.TotalRewardsUSD)
	fmt.Fprintf(c.out, "Weighted APY:      %.4f%% native + %.4f%% rewards = %.4f%%\n",
		agg.WeightedNativeAPY, agg.WeightedRewardsAPR, agg.WeightedTotalAPY)
	fmt.Fprintf(c.out, "Active duration:   %.2f days over %d periods\n", agg.TotalDurationDays, agg.PeriodCount)

	rec := a.Reconciliation
	fmt.Fprintf(c.out, "\nReconciliation: period-based %s vs simple %s (delta %s)\n",
		c.amount(rec.PeriodInterest), c.amount(rec.SimpleInterest), c.amount(rec.Delta))
	fmt.Fprintln(c.out, "  The period-based figure is authoritative: it weights each deposit by its actual holding time.")

	if len(a.Diagnostics) > 0 {
		fmt.Fprintf(c.out, "\nDiagnostics (%d):\n", len(a.Diagnostics))
		for _, d := range a.Diagnostics {
			fmt.Fprintf(c.out, "  [%s] %s\n", d.Kind, d.Detail)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printPeriods(periods []model.Period) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Blocks", "Duration", "Start value", "End value", "Interest", "Native APY", "Rewards APR", "Total APY", "Cum interest")

	for _, p := range periods {
		blocks := fmt.Sprintf("%d-%d", p.StartBlock, p.EndBlock)
		if p.OpenEnded {
			blocks += "*"
		}
		table.Append(
			fmt.Sprintf("%d", p.Index),
			blocks,
			formatDuration(p.Duration()),
			c.amount(p.StartValue),
			c.amount(p.EndValue),
			c.amount(p.Interest),
			fmt.Sprintf("%.4f%%", p.NativeAPY),
			fmt.Sprintf("%.4f%%", p.RewardsAPR),
			fmt.Sprintf("%.4f%%", p.TotalAPY),
			c.amount(p.CumulativeInterest),
		)
	}

	table.Render()
	fmt.Fprintln(c.out, "  * = open period, closed against the current block")
}

// amount renders a base-unit big.Int as whole asset units.
func (c *Console) amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(c.assetDecimals)), nil))
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), div).Float64()
	return fmt.Sprintf("%.6f", f)
}

func formatDuration(d time.Duration) string {
	days := d.Hours() / 24
	if days >= 1 {
		return fmt.Sprintf("%.1fd", days)
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func shorten(addr string) string {
	if strings.HasPrefix(addr, "0x") && len(addr) > 12 {
		return addr[:8] + ".." + addr[len(addr)-4:]
	}
	return addr
}
