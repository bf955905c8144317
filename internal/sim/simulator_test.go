package sim

import (
	"math"
	"testing"
	"time"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
)

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(n int, open, high, low, close float64) core.PriceBar {
	return core.PriceBar{Ticker: "AAPL", Date: day(n), Open: open, High: high, Low: low, Close: close}
}

func pick(price float64) core.Pick {
	return core.Pick{Ticker: "AAPL", Algorithm: "momentum", EntryDate: day(0), EntryPrice: price}
}

func zeroFeeParams(dir core.Direction, tp, sl float64, hold int) Params {
	return Params{
		Direction:     dir,
		TakeProfitPct: tp,
		StopLossPct:   sl,
		MaxHoldDays:   hold,
		Commission:    fees.ModelZero,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSimulateTakeProfitLong(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 10, 5, 20)

	bars := []core.PriceBar{
		bar(0, 150, 155, 148, 154),
		bar(1, 154, 166, 153, 160),
	}

	result := s.Simulate(pick(150), 10, p, bars)

	if result.ExitReason != core.ExitTakeProfit {
		t.Fatalf("exit reason = %s, want take_profit", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 165) {
		t.Errorf("exit price = %.4f, want 165 (entry 150 +10%%)", result.ExitPrice)
	}
	if !almostEqual(result.NetProfit, 150) {
		t.Errorf("net profit = %.4f, want 150", result.NetProfit)
	}
	if !almostEqual(result.ReturnPct, 10) {
		t.Errorf("return = %.4f%%, want 10%%", result.ReturnPct)
	}
	if result.HoldDays != 2 {
		t.Errorf("hold days = %d, want 2", result.HoldDays)
	}
}

func TestSimulateStopBeforeTargetSameBar(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 10, 5, 20)

	// One bar crosses both levels intraday. The stop must win.
	bars := []core.PriceBar{bar(0, 100, 112, 94, 108)}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitStopLoss {
		t.Fatalf("exit reason = %s, want stop_loss on ambiguous bar", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 95) {
		t.Errorf("exit price = %.4f, want stop level 95", result.ExitPrice)
	}
	if !almostEqual(result.ReturnPct, -5) {
		t.Errorf("return = %.4f%%, want -5%%", result.ReturnPct)
	}
}

func TestSimulateGapThroughStop(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 20, 5, 20)

	// Day 2 opens at 90, well below the 95 stop. The fill is the open, not
	// the stop level.
	bars := []core.PriceBar{
		bar(0, 100, 102, 99, 101),
		bar(1, 90, 92, 88, 91),
	}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitStopLoss {
		t.Fatalf("exit reason = %s, want stop_loss", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 90) {
		t.Errorf("exit price = %.4f, want gap open 90", result.ExitPrice)
	}
	if !result.Notes.GapFilled {
		t.Error("gap fill not annotated")
	}
	if !almostEqual(result.ReturnPct, -10) {
		t.Errorf("return = %.4f%%, want -10%%", result.ReturnPct)
	}
}

func TestSimulateEntryDayOpenIsNotAGap(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 20, 5, 20)

	// Day 1 trades below the stop from the open. Fill is still the stop
	// level: there is no prior close to gap from.
	bars := []core.PriceBar{bar(0, 93, 96, 92, 94)}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitStopLoss {
		t.Fatalf("exit reason = %s, want stop_loss", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 95) {
		t.Errorf("exit price = %.4f, want stop level 95", result.ExitPrice)
	}
	if result.Notes.GapFilled {
		t.Error("entry-day fill must not be annotated as a gap")
	}
}

func TestSimulateDisabledThresholds(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 999, 999, 3)

	// Wild swings in both directions. With both thresholds disabled the
	// trade must ride to the max-hold close.
	bars := []core.PriceBar{
		bar(0, 100, 300, 10, 120),
		bar(1, 120, 500, 5, 90),
		bar(2, 90, 95, 85, 110),
	}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitMaxHold {
		t.Fatalf("exit reason = %s, want max_hold with disabled thresholds", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 110) {
		t.Errorf("exit price = %.4f, want day-3 close 110", result.ExitPrice)
	}
}

func TestSimulateEmbargoSkipsExitChecks(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 10, 5, 20)
	p.EmbargoDays = 2

	// Days 1-2 would trip the stop, but they are embargoed. Day 3 hits the
	// target.
	bars := []core.PriceBar{
		bar(0, 100, 101, 90, 100),
		bar(1, 100, 101, 90, 100),
		bar(2, 100, 111, 99, 110),
	}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitTakeProfit {
		t.Fatalf("exit reason = %s, want take_profit after embargo", result.ExitReason)
	}
	if result.HoldDays != 3 {
		t.Errorf("hold days = %d, want 3 (embargoed days still count)", result.HoldDays)
	}
}

func TestSimulateShortTrade(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionShort, 5, 10, 20)

	// Short 100 shares at 100; a drop to the 95 target earns 5 per share.
	bars := []core.PriceBar{bar(0, 100, 101, 94, 96)}

	result := s.Simulate(pick(100), 100, p, bars)

	if result.ExitReason != core.ExitTakeProfit {
		t.Fatalf("exit reason = %s, want take_profit", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 95) {
		t.Errorf("exit price = %.4f, want 95", result.ExitPrice)
	}
	if !almostEqual(result.NetProfit, 500) {
		t.Errorf("net profit = %.4f, want 500", result.NetProfit)
	}
}

func TestSimulateShortStopOnRise(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionShort, 10, 5, 20)

	bars := []core.PriceBar{bar(0, 100, 106, 99, 105)}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitStopLoss {
		t.Fatalf("exit reason = %s, want stop_loss", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 105) {
		t.Errorf("exit price = %.4f, want 105", result.ExitPrice)
	}
	if !almostEqual(result.ReturnPct, -5) {
		t.Errorf("return = %.4f%%, want -5%%", result.ReturnPct)
	}
}

func TestSimulateNoBarsClosesAsFeeLoss(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 10, 5, 20)
	p.Commission = fees.ModelFlat

	result := s.Simulate(pick(100), 10, p, nil)

	if result.ExitReason != core.ExitNoData {
		t.Fatalf("exit reason = %s, want no_price_data", result.ExitReason)
	}
	if !almostEqual(result.GrossProfit, 0) {
		t.Errorf("gross = %.4f, want 0", result.GrossProfit)
	}
	if !almostEqual(result.Fees, 13.90) {
		t.Errorf("fees = %.4f, want 13.90 (two flat legs)", result.Fees)
	}
	if !almostEqual(result.NetProfit, -13.90) {
		t.Errorf("net = %.4f, want -13.90", result.NetProfit)
	}
}

func TestSimulateReturnFloor(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 999, 999, 5)
	p.Commission = fees.ModelFlat

	// Price collapses to zero. Even with fees on top the loss is capped at
	// the position value.
	bars := []core.PriceBar{
		bar(0, 100, 101, 99, 100),
		bar(1, 0.01, 0.01, 0, 0),
		bar(2, 0, 0, 0, 0),
		bar(3, 0, 0, 0, 0),
		bar(4, 0, 0, 0, 0),
	}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ReturnPct < -100 {
		t.Fatalf("return = %.4f%%, below the -100%% floor", result.ReturnPct)
	}
	if !almostEqual(result.ReturnPct, -100) {
		t.Errorf("return = %.4f%%, want exactly -100%%", result.ReturnPct)
	}
	if !almostEqual(result.NetProfit, -1000) {
		t.Errorf("net = %.4f, want -1000 (position value)", result.NetProfit)
	}
}

func TestSimulateEndOfData(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 50, 50, 100)

	bars := []core.PriceBar{
		bar(0, 100, 102, 99, 101),
		bar(1, 101, 103, 100, 102),
	}

	result := s.Simulate(pick(100), 10, p, bars)

	if result.ExitReason != core.ExitEndOfData {
		t.Fatalf("exit reason = %s, want end_of_data", result.ExitReason)
	}
	if !almostEqual(result.ExitPrice, 102) {
		t.Errorf("exit price = %.4f, want last close 102", result.ExitPrice)
	}
	if result.HoldDays != 2 {
		t.Errorf("hold days = %d, want 2", result.HoldDays)
	}
}

func TestSimulateSlippageWorksAgainstBothLegs(t *testing.T) {
	s := New(fees.NewAdapter())
	p := zeroFeeParams(core.DirectionLong, 10, 5, 20)
	p.SlippagePct = 1

	// Entry fills at 101, so the 10% target is 111.1. High of 112 reaches
	// it; the exit leg then loses another 1%.
	bars := []core.PriceBar{bar(0, 100, 112, 100, 111)}

	result := s.Simulate(pick(100), 10, p, bars)

	if !almostEqual(result.EntryPrice, 101) {
		t.Errorf("entry price = %.4f, want 101", result.EntryPrice)
	}
	if result.ExitReason != core.ExitTakeProfit {
		t.Fatalf("exit reason = %s, want take_profit", result.ExitReason)
	}
	wantExit := 101 * 1.10 * 0.99
	if !almostEqual(result.ExitPrice, wantExit) {
		t.Errorf("exit price = %.6f, want %.6f", result.ExitPrice, wantExit)
	}
}
