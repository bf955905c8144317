package regime

import (
	"testing"
	"time"
)

func d(day int) time.Time {
	return time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC)
}

func testFilter() *TableFilter {
	return NewTableFilter(map[time.Time]float64{
		d(1): 12,   // calm
		d(2): 17,   // normal
		d(3): 22,   // elevated
		d(4): 30,   // high
		d(5): 27.5, // boundary, high
	})
}

func TestModeFromString(t *testing.T) {
	cases := map[string]Mode{
		"skip_high":     ModeSkipHigh,
		"SKIP_ELEVATED": ModeSkipElevated,
		" calm_only ":   ModeCalmOnly,
		"custom":        ModeCustom,
		"off":           ModeOff,
		"garbage":       ModeOff,
	}
	for in, want := range cases {
		if got := ModeFromString(in); got != want {
			t.Errorf("ModeFromString(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRegimeBands(t *testing.T) {
	f := testFilter()
	cases := map[int]string{
		1: RegimeCalm,
		2: RegimeNormal,
		3: RegimeElevated,
		4: RegimeHigh,
		5: RegimeHigh,
	}
	for day, want := range cases {
		if got := f.Regime(d(day)); got != want {
			t.Errorf("regime on day %d = %s, want %s", day, got, want)
		}
	}
	if got := f.Regime(d(20)); got != RegimeUnknown {
		t.Errorf("regime for missing date = %s, want unknown", got)
	}
}

func TestShouldSkipModes(t *testing.T) {
	f := testFilter()

	cases := []struct {
		day    int
		mode   Mode
		maxVIX float64
		want   bool
	}{
		{1, ModeOff, 0, false},
		{4, ModeOff, 0, false},
		{3, ModeSkipHigh, 0, false},
		{4, ModeSkipHigh, 0, true},
		{5, ModeSkipHigh, 0, true},
		{2, ModeSkipElevated, 0, false},
		{3, ModeSkipElevated, 0, true},
		{1, ModeCalmOnly, 0, false},
		{2, ModeCalmOnly, 0, true},
		{2, ModeCustom, 18, false},
		{2, ModeCustom, 16, true},
		{2, ModeCustom, 0, false}, // no ceiling set
	}
	for _, c := range cases {
		if got := f.ShouldSkip(d(c.day), c.mode, c.maxVIX); got != c.want {
			t.Errorf("ShouldSkip(day %d, %s, %.1f) = %v, want %v",
				c.day, c.mode, c.maxVIX, got, c.want)
		}
	}
}

func TestShouldSkipUnknownDateNeverSkips(t *testing.T) {
	f := testFilter()
	for _, mode := range []Mode{ModeSkipHigh, ModeSkipElevated, ModeCalmOnly, ModeCustom} {
		if f.ShouldSkip(d(25), mode, 10) {
			t.Errorf("mode %s skipped a date with no reading", mode)
		}
	}
}

func TestReadingsNormalizedToMidnight(t *testing.T) {
	f := NewTableFilter(map[time.Time]float64{
		time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC): 30,
	})
	afternoon := time.Date(2024, 5, 1, 9, 45, 0, 0, time.UTC)
	if !f.ShouldSkip(afternoon, ModeSkipHigh, 0) {
		t.Error("intra-day timestamps must resolve to the same date key")
	}
	if f.VIX(afternoon) != 30 {
		t.Errorf("VIX = %.1f, want 30", f.VIX(afternoon))
	}
}
