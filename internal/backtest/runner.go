package backtest

import (
	"context"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
	"github.com/quantlab/backgrid/internal/marketdata"
	"github.com/quantlab/backgrid/internal/regime"
	"github.com/quantlab/backgrid/internal/sim"
	"go.uber.org/zap"
)

// Runner executes a sequential backtest: picks are processed strictly in
// entry-date order against a single capital balance.
//
// This is deliberately not a calendar-accurate multi-asset ledger. Each
// pick's trade is settled in full before capital is reused for the next
// pick, even when real-world hold periods would overlap. Preserve this
// model when changing the runner; results are comparable only under it.
type Runner struct {
	sim    *sim.Simulator
	quoter sim.FeeQuoter
	filter regime.Filter
	logger *zap.Logger
}

// Result bundles everything a run produces.
type Result struct {
	Params  Params             `json:"params"`
	Summary Summary            `json:"summary"`
	Trades  []core.TradeResult `json:"trades"`
	Skips   []core.Skip        `json:"skips"`
	Equity  []core.EquityPoint `json:"equity"`
}

// NewRunner creates a Runner. filter may be nil when no regime filtering is
// configured.
func NewRunner(simulator *sim.Simulator, quoter sim.FeeQuoter, filter regime.Filter, logger *zap.Logger) *Runner {
	return &Runner{sim: simulator, quoter: quoter, filter: filter, logger: logger}
}

// Run simulates every pick in order and aggregates the outcome. The picks
// slice must already be sorted by entry date (marketdata.Series guarantees
// this). Benchmark bars may be nil; when present they feed alpha/beta.
func (r *Runner) Run(ctx context.Context, picks []core.Pick, series *marketdata.Series, params Params, initialCapital float64, benchmark []core.PriceBar) (*Result, error) {
	capital := initialCapital
	peak := initialCapital

	result := &Result{Params: params}
	result.Equity = append(result.Equity, core.EquityPoint{Capital: capital})

	for _, pick := range picks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if r.filter != nil && params.VolFilter != regime.ModeOff &&
			r.filter.ShouldSkip(pick.EntryDate, params.VolFilter, params.MaxVIX) {
			result.Skips = append(result.Skips, core.Skip{
				Ticker: pick.Ticker, Date: pick.EntryDate, Reason: core.SkipRegime,
			})
			continue
		}

		shares := r.affordableShares(pick, capital, params)
		if shares <= 0 {
			result.Skips = append(result.Skips, core.Skip{
				Ticker: pick.Ticker, Date: pick.EntryDate, Reason: core.SkipCapital,
			})
			continue
		}

		bars := series.BarsFrom(pick.Ticker, pick.EntryDate)
		trade := r.sim.Simulate(pick, shares, params.Params, bars)
		if r.filter != nil {
			trade.Notes.VIX = r.filter.VIX(pick.EntryDate)
			trade.Notes.Regime = r.filter.Regime(pick.EntryDate)
		}

		capital += trade.NetProfit
		if capital > peak {
			peak = capital
		}

		result.Trades = append(result.Trades, trade)
		result.Equity = append(result.Equity, core.EquityPoint{Date: trade.ExitDate, Capital: capital})
	}

	result.Summary = Aggregate(result.Trades, initialCapital, capital, result.Equity)
	result.Summary.SkippedPicks = len(result.Skips)

	if len(benchmark) > 0 && len(result.Trades) > 0 {
		result.Summary.Alpha, result.Summary.Beta = AlphaBeta(
			equityMonthlyReturns(result.Equity),
			barMonthlyReturns(benchmark),
		)
	}

	r.logger.Debug("backtest run complete",
		zap.Int("trades", len(result.Trades)),
		zap.Int("skips", len(result.Skips)),
		zap.Float64("final_capital", capital),
	)
	return result, nil
}

// affordableShares sizes the position at capital x position_size_pct and
// returns the share count affordable after the entry commission. Zero means
// the pick is skipped.
func (r *Runner) affordableShares(pick core.Pick, capital float64, params Params) int {
	if pick.EntryPrice <= 0 {
		return 0
	}
	alloc := capital * params.PositionSizePct / 100
	estimate := int(alloc / pick.EntryPrice)
	if estimate <= 0 {
		return 0
	}
	fee := r.quoter.Quote(pick.Ticker, alloc, estimate, fees.SideBuy, params.Commission)
	shares := int((alloc - fee.Total) / pick.EntryPrice)
	if shares < 0 {
		return 0
	}
	return shares
}
