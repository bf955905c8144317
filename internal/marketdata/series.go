package marketdata

import (
	"sort"
	"strings"
	"time"

	"github.com/quantlab/backgrid/internal/core"
)

// Series holds ticker-indexed, date-ascending price bars plus the pick list.
// It is built once per process and shared read-only by every simulation, so
// the hot loop never touches a database.
type Series struct {
	bars  map[string][]core.PriceBar
	picks []core.Pick
}

// NewSeries returns an empty Series.
func NewSeries() *Series {
	return &Series{bars: make(map[string][]core.PriceBar)}
}

// AddBar appends a bar to its ticker's series. Bars must arrive in ascending
// date order per ticker; out-of-order or duplicate dates are rejected.
func (s *Series) AddBar(bar core.PriceBar) error {
	existing := s.bars[bar.Ticker]
	if n := len(existing); n > 0 && !existing[n-1].Date.Before(bar.Date) {
		return core.WrapError(core.ErrBadBarOrder, nil)
	}
	s.bars[bar.Ticker] = append(existing, bar)
	return nil
}

// AddPick appends a pick. Picks are re-sorted by entry date on Sort.
func (s *Series) AddPick(p core.Pick) {
	s.picks = append(s.picks, p)
}

// Sort orders picks chronologically. Call once after loading.
func (s *Series) Sort() {
	sort.SliceStable(s.picks, func(i, j int) bool {
		return s.picks[i].EntryDate.Before(s.picks[j].EntryDate)
	})
}

// BarsFrom returns the ticker's bars at or after date. The returned slice
// aliases the series and must be treated as read-only.
func (s *Series) BarsFrom(ticker string, date time.Time) []core.PriceBar {
	bars := s.bars[ticker]
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(date)
	})
	return bars[i:]
}

// Bars returns the full series for a ticker (read-only).
func (s *Series) Bars(ticker string) []core.PriceBar {
	return s.bars[ticker]
}

// Tickers returns the number of tickers with at least one bar.
func (s *Series) Tickers() int {
	return len(s.bars)
}

// Picks returns picks filtered by algorithm. An empty filter matches all.
// Algorithm matching is case-insensitive.
func (s *Series) Picks(algorithms []string) []core.Pick {
	if len(algorithms) == 0 {
		return s.picks
	}
	want := make(map[string]bool, len(algorithms))
	for _, a := range algorithms {
		want[strings.ToUpper(strings.TrimSpace(a))] = true
	}
	var out []core.Pick
	for _, p := range s.picks {
		if want[strings.ToUpper(p.Algorithm)] {
			out = append(out, p)
		}
	}
	return out
}

// Algorithms returns the distinct algorithm labels present in the pick list,
// sorted for deterministic enumeration.
func (s *Series) Algorithms() []string {
	seen := make(map[string]bool)
	for _, p := range s.picks {
		seen[p.Algorithm] = true
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
