// Package sim walks a single pick forward through daily price bars and
// produces exactly one closed TradeResult under a given rule set.
//
// The walk is a small state machine: a trade opens at an effective entry
// price, then each bar is checked for exits in a fixed priority order with
// the stop always evaluated before the target. On an ambiguous bar where
// both thresholds were crossed intraday this models the conservative
// assumption that the adverse move fired first.
package sim

import (
	"math"
	"time"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
)

// Params is the per-trade rule configuration.
type Params struct {
	Direction     core.Direction `json:"direction"`
	TakeProfitPct float64        `json:"take_profit_pct"`
	StopLossPct   float64        `json:"stop_loss_pct"`
	MaxHoldDays   int            `json:"max_hold_days"`
	EmbargoDays   int            `json:"embargo_days"`
	SlippagePct   float64        `json:"slippage_pct"`
	Commission    fees.Model     `json:"commission_model"`
}

// FeeQuoter prices one leg of a trade. *fees.Adapter satisfies it.
type FeeQuoter interface {
	Quote(ticker string, tradeValue float64, shares int, side fees.Side, model fees.Model) fees.Breakdown
}

// Simulator runs single-trade simulations. It is stateless and safe for
// concurrent use across grid workers.
type Simulator struct {
	fees FeeQuoter
}

// New creates a Simulator backed by the given fee quoter.
func New(quoter FeeQuoter) *Simulator {
	return &Simulator{fees: quoter}
}

// Simulate walks the pick forward through bars (which must start at or after
// the pick's entry date) and returns the closed trade. It never fails: a
// pick with no bars closes immediately as a guaranteed-loss no-data trade.
func (s *Simulator) Simulate(pick core.Pick, shares int, p Params, bars []core.PriceBar) core.TradeResult {
	long := p.Direction != core.DirectionShort
	slip := p.SlippagePct / 100

	// Long entries pay up, short entries sell down.
	entry := pick.EntryPrice * (1 + slip)
	if !long {
		entry = pick.EntryPrice * (1 - slip)
	}

	result := core.TradeResult{
		Ticker:     pick.Ticker,
		Algorithm:  pick.Algorithm,
		Direction:  p.Direction,
		EntryDate:  pick.EntryDate,
		EntryPrice: entry,
		Shares:     shares,
		Notes:      core.Annotations{Version: core.AnnotationsVersion},
	}

	if len(bars) == 0 {
		// No bar at or after the pick date: zero gross P/L, but both
		// legs' commissions are still charged as a pure loss.
		return s.settle(result, p, pick.EntryDate, entry, core.ExitNoData)
	}

	stop, target := thresholds(entry, p, long)

	var (
		exitPrice float64
		exitDate  time.Time
		reason    core.ExitReason
		day       int
	)

	for _, bar := range bars {
		day++

		// Embargoed bars count toward hold days but admit no exit.
		if p.EmbargoDays > 0 && day <= p.EmbargoDays {
			continue
		}

		if price, why, gapped := checkExit(bar, stop, target, day, long); why != "" {
			exitPrice, exitDate, reason = price, bar.Date, why
			result.Notes.GapFilled = gapped
			break
		}

		if p.MaxHoldDays > 0 && day >= p.MaxHoldDays {
			exitPrice, exitDate, reason = bar.Close, bar.Date, core.ExitMaxHold
			break
		}
	}

	if reason == "" {
		last := bars[len(bars)-1]
		exitPrice, exitDate, reason = last.Close, last.Date, core.ExitEndOfData
	}

	result.HoldDays = day
	result.Notes.BarsWalked = day
	return s.settle(result, p, exitDate, exitPrice, reason)
}

// thresholds computes the stop and target price levels, or NaN for a
// disabled threshold so the corresponding check can never fire.
func thresholds(entry float64, p Params, long bool) (stop, target float64) {
	stop, target = math.NaN(), math.NaN()
	if p.StopLossPct < core.DisabledThreshold {
		if long {
			stop = entry * (1 - p.StopLossPct/100)
		} else {
			stop = entry * (1 + p.StopLossPct/100)
		}
	}
	if p.TakeProfitPct < core.DisabledThreshold {
		if long {
			target = entry * (1 + p.TakeProfitPct/100)
		} else {
			target = entry * (1 - p.TakeProfitPct/100)
		}
	}
	return stop, target
}

// checkExit applies the exit priority for one bar: gap stop, ordinary stop,
// gap target, ordinary target. Gap fills only apply after day 1 (the entry
// bar's open is the entry itself). NaN thresholds never compare true, so a
// disabled stop or target is skipped without special-casing.
func checkExit(bar core.PriceBar, stop, target float64, day int, long bool) (price float64, reason core.ExitReason, gapped bool) {
	if long {
		if day > 1 && bar.Open <= stop {
			return bar.Open, core.ExitStopLoss, true
		}
		if bar.Low <= stop {
			return stop, core.ExitStopLoss, false
		}
		if day > 1 && bar.Open >= target {
			return bar.Open, core.ExitTakeProfit, true
		}
		if bar.High >= target {
			return target, core.ExitTakeProfit, false
		}
		return 0, "", false
	}

	// Short: a rise hits the stop, a drop hits the target.
	if day > 1 && bar.Open >= stop {
		return bar.Open, core.ExitStopLoss, true
	}
	if bar.High >= stop {
		return stop, core.ExitStopLoss, false
	}
	if day > 1 && bar.Open <= target {
		return bar.Open, core.ExitTakeProfit, true
	}
	if bar.Low <= target {
		return target, core.ExitTakeProfit, false
	}
	return 0, "", false
}

// settle applies exit slippage, prices both fee legs, and closes the trade.
// The -100% return floor lives here, in the settlement math itself: the
// effective exit price is floored at zero and the net loss is capped at the
// capital committed to the position, so no caller ever needs a post-hoc
// clamp.
func (s *Simulator) settle(result core.TradeResult, p Params, exitDate time.Time, exitPrice float64, reason core.ExitReason) core.TradeResult {
	long := p.Direction != core.DirectionShort
	slip := p.SlippagePct / 100
	entry := result.EntryPrice
	shares := result.Shares
	position := entry * float64(shares)

	// Exit slippage works against the position: longs sell lower, shorts
	// cover higher.
	effExit := exitPrice * (1 - slip)
	if !long {
		effExit = exitPrice * (1 + slip)
	}
	if effExit < 0 {
		effExit = 0
	}

	var gross float64
	if reason != core.ExitNoData {
		if long {
			gross = (effExit - entry) * float64(shares)
		} else {
			gross = (entry - effExit) * float64(shares)
		}
	} else {
		effExit = entry
	}

	entrySide, exitSide := fees.SideBuy, fees.SideSell
	if !long {
		entrySide, exitSide = fees.SideSell, fees.SideBuy
	}
	entryFee := s.fees.Quote(result.Ticker, position, shares, entrySide, p.Commission)
	exitFee := s.fees.Quote(result.Ticker, effExit*float64(shares), shares, exitSide, p.Commission)
	totalFees := entryFee.Total + exitFee.Total

	net := gross - totalFees
	if position > 0 && net < -position {
		net = -position
	}

	returnPct := 0.0
	if position > 0 {
		returnPct = net / position * 100
	}

	result.ExitDate = exitDate
	result.ExitPrice = effExit
	result.GrossProfit = gross
	result.Fees = totalFees
	result.NetProfit = net
	result.ReturnPct = returnPct
	result.ExitReason = reason
	return result
}
