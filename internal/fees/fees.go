// Package fees computes per-leg commission costs for simulated trades.
//
// The engine calls Quote exactly once per leg (entry and exit) and sums the
// Total of both legs into the trade's fee cost. This is the single canonical
// signature; callers never compute fee components themselves.
package fees

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Model selects the commission schedule.
type Model string

const (
	ModelQuestrade Model = "questrade"
	ModelFlat      Model = "flat"
	ModelZero      Model = "zero"
)

// ModelFromString parses a model name, falling back to zero for unknown
// values rather than failing.
func ModelFromString(s string) Model {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case ModelQuestrade:
		return ModelQuestrade
	case ModelFlat:
		return ModelFlat
	default:
		return ModelZero
	}
}

// Side is the leg being priced.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Breakdown itemizes one leg's fees.
type Breakdown struct {
	Total float64 `json:"total"`
	Forex float64 `json:"forex"`
	ECN   float64 `json:"ecn"`
	SEC   float64 `json:"sec"`
	IsCDR bool    `json:"is_cdr"`
}

// Questrade fee schedule constants. Amounts are CAD-account figures for
// US-listed trades; CDRs trade in CAD and carry no forex conversion.
var (
	questradeMin    = decimal.NewFromFloat(4.95)
	questradeMax    = decimal.NewFromFloat(9.95)
	questradePerShr = decimal.NewFromFloat(0.01)
	ecnPerShare     = decimal.NewFromFloat(0.0035)
	secRate         = decimal.NewFromFloat(0.0000278) // sell side only
	forexRate       = decimal.NewFromFloat(0.015)
	flatFee         = decimal.NewFromFloat(6.95)
)

// Adapter prices trade legs under a commission model.
type Adapter struct{}

// NewAdapter creates an Adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Quote returns the fee breakdown for one leg of a trade.
func (a *Adapter) Quote(ticker string, tradeValue float64, shares int, side Side, model Model) Breakdown {
	switch model {
	case ModelQuestrade:
		return questrade(ticker, tradeValue, shares, side)
	case ModelFlat:
		f, _ := flatFee.Float64()
		return Breakdown{Total: f}
	default:
		return Breakdown{}
	}
}

func questrade(ticker string, tradeValue float64, shares int, side Side) Breakdown {
	value := decimal.NewFromFloat(tradeValue)
	qty := decimal.NewFromInt(int64(shares))

	// Per-share commission bounded to [$4.95, $9.95].
	commission := questradePerShr.Mul(qty)
	if commission.LessThan(questradeMin) {
		commission = questradeMin
	}
	if commission.GreaterThan(questradeMax) {
		commission = questradeMax
	}

	ecn := ecnPerShare.Mul(qty)

	sec := decimal.Zero
	if side == SideSell {
		sec = secRate.Mul(value).RoundCeil(2)
	}

	// CDRs are CAD-denominated; everything else US-listed pays conversion.
	cdr := IsCDR(ticker)
	forex := decimal.Zero
	if !cdr {
		forex = forexRate.Mul(value)
	}

	total := commission.Add(ecn).Add(sec).Add(forex)

	return Breakdown{
		Total: roundFloat(total),
		Forex: roundFloat(forex),
		ECN:   roundFloat(ecn),
		SEC:   roundFloat(sec),
		IsCDR: cdr,
	}
}

// IsCDR reports whether a ticker is a Canadian Depositary Receipt listing.
func IsCDR(ticker string) bool {
	return strings.HasSuffix(strings.ToUpper(ticker), ".NE") ||
		strings.HasSuffix(strings.ToUpper(ticker), ".TO")
}

func roundFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(4).Float64()
	return f
}
