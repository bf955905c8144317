// Package regime decides whether a pick may be traded given the market's
// volatility classification on its entry date.
package regime

import (
	"strings"
	"time"
)

// Mode selects how aggressively the filter skips picks.
type Mode string

const (
	ModeOff          Mode = "off"
	ModeSkipHigh     Mode = "skip_high"
	ModeSkipElevated Mode = "skip_elevated"
	ModeCalmOnly     Mode = "calm_only"
	ModeCustom       Mode = "custom"
)

// ModeFromString parses a mode name. Unknown values fall back to off so a
// bad parameter degrades to "no filtering" instead of failing the request.
func ModeFromString(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSkipHigh, ModeSkipElevated, ModeCalmOnly, ModeCustom:
		return Mode(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ModeOff
	}
}

// Regime bands by VIX level.
const (
	RegimeCalm     = "calm"     // VIX < 15
	RegimeNormal   = "normal"   // 15 <= VIX < 20
	RegimeElevated = "elevated" // 20 <= VIX < 27.5
	RegimeHigh     = "high"     // VIX >= 27.5
	RegimeUnknown  = "unknown"  // no reading for the date
)

// Filter is the trade-admission contract consumed by the orchestrator.
type Filter interface {
	// ShouldSkip reports whether a pick entered on date must be skipped.
	ShouldSkip(date time.Time, mode Mode, maxVIX float64) bool
	// VIX returns the reading for a date, or 0 if unknown.
	VIX(date time.Time) float64
	// Regime returns the classification band for a date.
	Regime(date time.Time) string
}

// TableFilter implements Filter over an in-memory date->VIX table.
type TableFilter struct {
	readings map[time.Time]float64
}

// NewTableFilter builds a filter from readings keyed by date (UTC midnight).
func NewTableFilter(readings map[time.Time]float64) *TableFilter {
	norm := make(map[time.Time]float64, len(readings))
	for d, v := range readings {
		norm[dateKey(d)] = v
	}
	return &TableFilter{readings: norm}
}

// ShouldSkip applies the configured mode. Dates without a reading are never
// skipped: absence of data is not evidence of volatility.
func (f *TableFilter) ShouldSkip(date time.Time, mode Mode, maxVIX float64) bool {
	vix, ok := f.readings[dateKey(date)]
	if !ok || mode == ModeOff {
		return false
	}
	switch mode {
	case ModeSkipHigh:
		return vix >= 27.5
	case ModeSkipElevated:
		return vix >= 20
	case ModeCalmOnly:
		return vix >= 15
	case ModeCustom:
		return maxVIX > 0 && vix > maxVIX
	}
	return false
}

// VIX returns the reading for a date, or 0 if none exists.
func (f *TableFilter) VIX(date time.Time) float64 {
	return f.readings[dateKey(date)]
}

// Regime classifies a date's volatility band.
func (f *TableFilter) Regime(date time.Time) string {
	vix, ok := f.readings[dateKey(date)]
	if !ok {
		return RegimeUnknown
	}
	switch {
	case vix < 15:
		return RegimeCalm
	case vix < 20:
		return RegimeNormal
	case vix < 27.5:
		return RegimeElevated
	default:
		return RegimeHigh
	}
}

func dateKey(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
