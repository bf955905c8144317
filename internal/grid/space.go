// Package grid enumerates a parameter space of backtest rule combinations
// and sweeps it in bounded, checkpointed batches.
package grid

import (
	"strings"

	"github.com/quantlab/backgrid/internal/core"
	"github.com/quantlab/backgrid/internal/fees"
)

// AllAlgorithms is the portfolio key meaning "every pick".
const AllAlgorithms = "ALL"

// comboSeparator joins the two legs of a combo-portfolio key.
const comboSeparator = "+"

// Combo is one concrete assignment of every tunable parameter.
type Combo struct {
	Index         int            `json:"index"`
	Direction     core.Direction `json:"direction"`
	Algorithm     string         `json:"algorithm"` // single label, ALL, or "A+B"
	TakeProfitPct float64        `json:"take_profit_pct"`
	StopLossPct   float64        `json:"stop_loss_pct"`
	HoldDays      int            `json:"hold_days"`
	Commission    fees.Model     `json:"commission_model"`
}

// AlgorithmFilter expands the combo's algorithm key into the pick filter
// understood by marketdata.Series.Picks. ALL yields nil (match everything).
func (c Combo) AlgorithmFilter() []string {
	if c.Algorithm == AllAlgorithms {
		return nil
	}
	return strings.Split(c.Algorithm, comboSeparator)
}

// Space is a fixed enumeration of the full combination set. The axis order
// (direction, algorithm, take-profit, stop-loss, hold-days, commission) and
// the order of values within each axis never change for a given space, so
// ComboAt is a pure function and any index always decodes to the same combo.
type Space struct {
	Directions  []core.Direction
	Algorithms  []string
	TakeProfits []float64
	StopLosses  []float64
	HoldDays    []int
	Commissions []fees.Model
}

// NewSpace builds a space over the given single-algorithm labels. The
// algorithm axis contains each label, the ALL portfolio, and a reduced set
// of two-algorithm combos (adjacent pairs in sorted label order; the full
// pairwise set would dominate the enumeration without adding much signal).
func NewSpace(algorithms []string, takeProfits, stopLosses []float64, holdDays []int, commissions []string) Space {
	keys := make([]string, 0, len(algorithms)*2+1)
	keys = append(keys, algorithms...)
	keys = append(keys, AllAlgorithms)
	for i := 0; i+1 < len(algorithms); i++ {
		keys = append(keys, algorithms[i]+comboSeparator+algorithms[i+1])
	}

	models := make([]fees.Model, 0, len(commissions))
	for _, c := range commissions {
		models = append(models, fees.ModelFromString(c))
	}

	return Space{
		Directions:  []core.Direction{core.DirectionLong, core.DirectionShort},
		Algorithms:  keys,
		TakeProfits: takeProfits,
		StopLosses:  stopLosses,
		HoldDays:    holdDays,
		Commissions: models,
	}
}

// Size is the total number of combinations.
func (s Space) Size() int {
	return len(s.Directions) * len(s.Algorithms) * len(s.TakeProfits) *
		len(s.StopLosses) * len(s.HoldDays) * len(s.Commissions)
}

// ComboAt decodes index i (0 <= i < Size) into its combination. The decode
// is mixed-radix with direction as the most significant digit.
func (s Space) ComboAt(i int) Combo {
	rem := i

	commission := s.Commissions[rem%len(s.Commissions)]
	rem /= len(s.Commissions)

	hold := s.HoldDays[rem%len(s.HoldDays)]
	rem /= len(s.HoldDays)

	sl := s.StopLosses[rem%len(s.StopLosses)]
	rem /= len(s.StopLosses)

	tp := s.TakeProfits[rem%len(s.TakeProfits)]
	rem /= len(s.TakeProfits)

	algo := s.Algorithms[rem%len(s.Algorithms)]
	rem /= len(s.Algorithms)

	dir := s.Directions[rem%len(s.Directions)]

	return Combo{
		Index:         i,
		Direction:     dir,
		Algorithm:     algo,
		TakeProfitPct: tp,
		StopLossPct:   sl,
		HoldDays:      hold,
		Commission:    commission,
	}
}
