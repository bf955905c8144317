package backtest

import (
	"fmt"
	"math"
	"sort"

	"github.com/quantlab/backgrid/internal/core"
)

// Aggregate computes the summary statistics for one run from its trade log
// and equity curve.
func Aggregate(trades []core.TradeResult, initialCapital, finalCapital float64, equity []core.EquityPoint) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalCapital:   finalCapital,
		TotalTrades:    len(trades),
	}
	if len(trades) == 0 {
		return s
	}

	var (
		returns    []float64
		grossWin   float64
		grossLoss  float64
		sumWinPct  float64
		sumLossPct float64
	)

	for _, t := range trades {
		returns = append(returns, t.ReturnPct)
		s.TotalFees += t.Fees
		if t.IsWin() {
			s.WinningTrades++
			grossWin += t.NetProfit
			sumWinPct += t.ReturnPct
		} else {
			s.LosingTrades++
			grossLoss += -t.NetProfit
			sumLossPct += -t.ReturnPct
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	if s.WinningTrades > 0 {
		s.AvgWinPct = sumWinPct / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPct = sumLossPct / float64(s.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = ProfitFactorCap
	}

	winRate := s.WinRate / 100
	s.Expectancy = winRate*s.AvgWinPct - (1-winRate)*s.AvgLossPct

	if initialCapital > 0 {
		s.TotalReturnPct = (finalCapital - initialCapital) / initialCapital * 100
	}
	s.MaxDrawdownPct = maxDrawdown(equity) * 100

	mean, stddev := meanStddev(returns)
	if stddev > 0 {
		s.Sharpe = mean / stddev
		s.SharpeAnnualized = s.Sharpe * math.Sqrt(252)
	}
	if dd := downsideDeviation(returns); dd > 0 {
		s.Sortino = mean / dd
	}
	if s.MaxDrawdownPct > 0 {
		s.Calmar = s.TotalReturnPct / s.MaxDrawdownPct
	}

	s.CAGR = cagr(trades, initialCapital, finalCapital)
	return s
}

// maxDrawdown finds the largest peak-to-trough decline in the equity curve.
func maxDrawdown(equity []core.EquityPoint) float64 {
	var maxDD, peak float64
	for _, pt := range equity {
		if pt.Capital > peak {
			peak = pt.Capital
		}
		if peak > 0 {
			if dd := (peak - pt.Capital) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)-1))
}

// downsideDeviation is the standard deviation of negative returns only.
func downsideDeviation(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}
	_, dd := meanStddev(negatives)
	return dd
}

// cagr annualizes the total return over the span from the first entry to
// the last exit.
func cagr(trades []core.TradeResult, initialCapital, finalCapital float64) float64 {
	if initialCapital <= 0 || finalCapital <= 0 || len(trades) == 0 {
		return 0
	}
	first := trades[0].EntryDate
	last := trades[0].ExitDate
	for _, t := range trades {
		if t.EntryDate.Before(first) {
			first = t.EntryDate
		}
		if t.ExitDate.After(last) {
			last = t.ExitDate
		}
	}
	days := last.Sub(first).Hours() / 24
	if days < 1 {
		return 0
	}
	return (math.Pow(finalCapital/initialCapital, 365/days) - 1) * 100
}

// AlphaBeta regresses portfolio monthly returns against benchmark monthly
// returns with ordinary least squares. Only months present in both series
// are used; fewer than two matched months yields zeros.
func AlphaBeta(portfolio, benchmark map[string]float64) (alpha, beta float64) {
	var months []string
	for m := range portfolio {
		if _, ok := benchmark[m]; ok {
			months = append(months, m)
		}
	}
	if len(months) < 2 {
		return 0, 0
	}
	sort.Strings(months)

	var xs, ys []float64
	for _, m := range months {
		xs = append(xs, benchmark[m])
		ys = append(ys, portfolio[m])
	}

	meanX, _ := meanStddev(xs)
	meanY, _ := meanStddev(ys)

	var cov, varX float64
	for i := range xs {
		cov += (xs[i] - meanX) * (ys[i] - meanY)
		varX += (xs[i] - meanX) * (xs[i] - meanX)
	}
	if varX == 0 {
		return 0, 0
	}
	beta = cov / varX
	alpha = meanY - beta*meanX
	return alpha, beta
}

// equityMonthlyReturns converts an equity curve into month-keyed returns
// ("2024-01" -> pct) using each month's last sample.
func equityMonthlyReturns(equity []core.EquityPoint) map[string]float64 {
	ends := make(map[string]float64)
	var order []string
	for _, pt := range equity {
		if pt.Date.IsZero() {
			continue
		}
		key := monthKey(pt.Date.Year(), int(pt.Date.Month()))
		if _, seen := ends[key]; !seen {
			order = append(order, key)
		}
		ends[key] = pt.Capital
	}
	return monthOverMonth(order, ends)
}

// barMonthlyReturns converts a benchmark bar series into month-keyed close
// returns.
func barMonthlyReturns(bars []core.PriceBar) map[string]float64 {
	ends := make(map[string]float64)
	var order []string
	for _, b := range bars {
		key := monthKey(b.Date.Year(), int(b.Date.Month()))
		if _, seen := ends[key]; !seen {
			order = append(order, key)
		}
		ends[key] = b.Close
	}
	return monthOverMonth(order, ends)
}

func monthOverMonth(order []string, ends map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for i := 1; i < len(order); i++ {
		prev, cur := ends[order[i-1]], ends[order[i]]
		if prev > 0 {
			out[order[i]] = (cur - prev) / prev * 100
		}
	}
	return out
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
