package core

import "time"

// Direction is the side of a simulated position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid reports whether the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// ExitReason describes how a simulated trade was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitMaxHold    ExitReason = "max_hold"
	ExitEndOfData  ExitReason = "end_of_data"
	ExitNoData     ExitReason = "no_price_data"
)

// DisabledThreshold is the sentinel take-profit/stop-loss percentage at or
// above which the corresponding exit check is skipped entirely, modeling
// "no stop" / "no target".
const DisabledThreshold = 999.0

// Pick is an upstream strategy's instruction to enter a position. Picks are
// produced outside this engine and are immutable inputs.
type Pick struct {
	Ticker     string    `json:"ticker"`
	Algorithm  string    `json:"algorithm"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
}

// PriceBar is one ticker's OHLC for one trading day. Bars for a ticker are
// strictly date-ascending.
type PriceBar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
}

// Annotations is typed per-trade metadata. Known fields are first-class;
// anything else goes through Extra. Version guards readers of persisted rows.
type Annotations struct {
	Version    int               `json:"version"`
	VIX        float64           `json:"vix,omitempty"`
	Regime     string            `json:"regime,omitempty"`
	GapFilled  bool              `json:"gap_filled,omitempty"`
	BarsWalked int               `json:"bars_walked,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// AnnotationsVersion is the current Annotations schema version.
const AnnotationsVersion = 1

// TradeResult is the outcome of simulating one Pick under one rule set.
// Immutable once closed.
type TradeResult struct {
	Ticker      string      `json:"ticker"`
	Algorithm   string      `json:"algorithm"`
	Direction   Direction   `json:"direction"`
	EntryDate   time.Time   `json:"entry_date"`
	EntryPrice  float64     `json:"entry_price"`
	ExitDate    time.Time   `json:"exit_date"`
	ExitPrice   float64     `json:"exit_price"`
	Shares      int         `json:"shares"`
	GrossProfit float64     `json:"gross_profit"`
	Fees        float64     `json:"fees"`
	NetProfit   float64     `json:"net_profit"`
	ReturnPct   float64     `json:"return_pct"`
	ExitReason  ExitReason  `json:"exit_reason"`
	HoldDays    int         `json:"hold_days"`
	Notes       Annotations `json:"notes"`
}

// IsWin reports whether the trade closed with a positive net profit.
func (t TradeResult) IsWin() bool {
	return t.NetProfit > 0
}

// PositionValue is the capital committed at entry.
func (t TradeResult) PositionValue() float64 {
	return t.EntryPrice * float64(t.Shares)
}

// EquityPoint is one sample of the account balance over a backtest run.
type EquityPoint struct {
	Date    time.Time `json:"date"`
	Capital float64   `json:"capital"`
}

// Skip records a pick that never became a trade and why.
type Skip struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// Skip reasons.
const (
	SkipRegime  = "regime_filter"
	SkipCapital = "insufficient_capital"
)
