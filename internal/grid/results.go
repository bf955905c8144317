package grid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/quantlab/backgrid/internal/core"
)

// SortKey selects the summary field used to rank cells.
type SortKey string

const (
	SortTotalReturn  SortKey = "total_return"
	SortWinRate      SortKey = "win_rate"
	SortSharpe       SortKey = "sharpe"
	SortProfitFactor SortKey = "profit_factor"
)

// SortKeyFromString parses a sort key, falling back to total_return for
// unknown values.
func SortKeyFromString(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortWinRate:
		return SortWinRate
	case SortSharpe:
		return SortSharpe
	case SortProfitFactor:
		return SortProfitFactor
	default:
		return SortTotalReturn
	}
}

// HeatmapCell aggregates every ranked cell sharing a TP x SL x hold-days
// coordinate.
type HeatmapCell struct {
	TakeProfitPct  float64 `json:"take_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	HoldDays       int     `json:"hold_days"`
	Count          int     `json:"count"`
	MeanReturnPct  float64 `json:"mean_return_pct"`
	BestReturnPct  float64 `json:"best_return_pct"`
	WorstReturnPct float64 `json:"worst_return_pct"`
}

// Report is the ranked view over the cell journal.
type Report struct {
	SortKey      SortKey         `json:"sort_key"`
	Top          []Cell          `json:"top_results"`
	Worst        []Cell          `json:"worst_results"`
	PerAlgorithm map[string]Cell `json:"per_algorithm"`
	Heatmap      []HeatmapCell   `json:"heatmap"`
}

// Results ranks the journal by the given key and returns the top and bottom
// limit cells, the best cell per algorithm key, and the TP x SL x hold
// heatmap aggregate.
func (s *Scheduler) Results(ctx context.Context, key SortKey, limit int) (*Report, error) {
	cells, err := s.store.Cells(ctx)
	if err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if limit < 1 {
		limit = 10
	}

	sort.SliceStable(cells, func(i, j int) bool {
		return rank(cells[i], key) > rank(cells[j], key)
	})

	report := &Report{
		SortKey:      key,
		PerAlgorithm: make(map[string]Cell),
		Heatmap:      heatmap(cells),
	}

	n := len(cells)
	top := limit
	if top > n {
		top = n
	}
	report.Top = append(report.Top, cells[:top]...)

	worst := limit
	if worst > n {
		worst = n
	}
	for i := n - 1; i >= n-worst; i-- {
		report.Worst = append(report.Worst, cells[i])
	}

	// Cells are already ranked best-first, so first sight wins.
	for _, c := range cells {
		if _, ok := report.PerAlgorithm[c.Combo.Algorithm]; !ok {
			report.PerAlgorithm[c.Combo.Algorithm] = c
		}
	}

	return report, nil
}

func rank(c Cell, key SortKey) float64 {
	switch key {
	case SortWinRate:
		return c.Summary.WinRate
	case SortSharpe:
		return c.Summary.Sharpe
	case SortProfitFactor:
		return c.Summary.ProfitFactor
	default:
		return c.Summary.TotalReturnPct
	}
}

func heatmap(cells []Cell) []HeatmapCell {
	agg := make(map[string]*HeatmapCell)
	var keys []string
	var sums = make(map[string]float64)

	for _, c := range cells {
		key := fmt.Sprintf("%.2f|%.2f|%d", c.Combo.TakeProfitPct, c.Combo.StopLossPct, c.Combo.HoldDays)
		h, ok := agg[key]
		if !ok {
			h = &HeatmapCell{
				TakeProfitPct:  c.Combo.TakeProfitPct,
				StopLossPct:    c.Combo.StopLossPct,
				HoldDays:       c.Combo.HoldDays,
				BestReturnPct:  c.Summary.TotalReturnPct,
				WorstReturnPct: c.Summary.TotalReturnPct,
			}
			agg[key] = h
			keys = append(keys, key)
		}
		h.Count++
		sums[key] += c.Summary.TotalReturnPct
		if c.Summary.TotalReturnPct > h.BestReturnPct {
			h.BestReturnPct = c.Summary.TotalReturnPct
		}
		if c.Summary.TotalReturnPct < h.WorstReturnPct {
			h.WorstReturnPct = c.Summary.TotalReturnPct
		}
	}

	sort.Strings(keys)
	out := make([]HeatmapCell, 0, len(agg))
	for _, key := range keys {
		h := agg[key]
		h.MeanReturnPct = sums[key] / float64(h.Count)
		out = append(out, *h)
	}
	return out
}
