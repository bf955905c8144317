package backtest

import (
	"github.com/quantlab/backgrid/internal/regime"
	"github.com/quantlab/backgrid/internal/sim"
)

// Params is one full rule configuration for a backtest run: the per-trade
// simulation rules plus account-level sizing and admission settings.
type Params struct {
	sim.Params

	PositionSizePct float64     `json:"position_size_pct"`
	VolFilter       regime.Mode `json:"vol_filter"`
	MaxVIX          float64     `json:"max_vix"`
	Algorithms      []string    `json:"algorithms,omitempty"`
}

// Summary holds aggregate statistics for one run. It is derived data,
// recomputed per run and never mutated after creation.
//
// Sharpe convention: Sharpe is the raw mean/stddev of per-trade returns;
// SharpeAnnualized is the same figure scaled by sqrt(252). The upstream
// system mixed both conventions across call sites; here both are explicit
// fields and downstream comparisons must pick one and stay with it.
type Summary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	AvgWinPct  float64 `json:"avg_win_pct"`
	AvgLossPct float64 `json:"avg_loss_pct"`

	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	Sharpe           float64 `json:"sharpe"`
	SharpeAnnualized float64 `json:"sharpe_annualized"`
	Sortino          float64 `json:"sortino"`
	Calmar           float64 `json:"calmar"`

	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	CAGR         float64 `json:"cagr"`

	Alpha float64 `json:"alpha,omitempty"`
	Beta  float64 `json:"beta,omitempty"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalFees      float64 `json:"total_fees"`
	SkippedPicks   int     `json:"skipped_picks"`
}

// ProfitFactorCap is reported when a run has winning trades and no losing
// trades; an infinite ratio would not survive JSON round-trips.
const ProfitFactorCap = 9999.0
