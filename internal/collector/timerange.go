package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"BandWatch/internal/model"
)

// Mode selects how the time range of a fetch is chosen.
type Mode string

const (
	ModeInterval  Mode = "interval"
	ModeLookback  Mode = "lookback"
	ModeDateRange Mode = "daterange"
)

const (
	// MaxBars is the most bars Kraken returns from one OHLC call.
	MaxBars = 720

	DefaultInterval = 60
	dateLayout      = "2006-01-02"
)

// ValidIntervals are the bar sizes, in minutes, that Kraken accepts.
var ValidIntervals = []int{1, 5, 15, 30, 60, 240, 1440, 10080, 21600}

// Lookbacks lists the named windows in display order.
var Lookbacks = []string{"1w", "1m", "3m", "6m", "1y", "5y", "ytd"}

var lookbackSpans = map[string]time.Duration{
	"1w": 7 * 24 * time.Hour,
	"1m": 30 * 24 * time.Hour,
	"3m": 90 * 24 * time.Hour,
	"6m": 180 * 24 * time.Hour,
	"1y": 365 * 24 * time.Hour,
	"5y": 5 * 365 * 24 * time.Hour,
}

// RangeSpec is the user's time range selection.
type RangeSpec struct {
	Mode     Mode   `json:"mode"`
	Interval int    `json:"interval,omitempty"`
	Lookback string `json:"lookback,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// ResolvedRange is a RangeSpec turned into exchange parameters. Zero Since
// or Until means unbounded on that side.
type ResolvedRange struct {
	Interval int
	Since    time.Time
	Until    time.Time
}

// IsValidInterval reports whether Kraken serves bars of n minutes.
func IsValidInterval(n int) bool {
	for _, v := range ValidIntervals {
		if v == n {
			return true
		}
	}
	return false
}

// IntervalFor picks the smallest interval that covers span in at most MaxBars bars.
func IntervalFor(span time.Duration) int {
	minutes := span.Minutes()
	for _, v := range ValidIntervals {
		if minutes/float64(v) <= MaxBars {
			return v
		}
	}
	return ValidIntervals[len(ValidIntervals)-1]
}

// Resolve validates the selection and computes the exchange parameters relative to now.
func (r RangeSpec) Resolve(now time.Time) (ResolvedRange, error) {
	now = now.UTC()
	switch r.Mode {
	case "", ModeInterval:
		iv := r.Interval
		if iv == 0 {
			iv = DefaultInterval
		}
		if !IsValidInterval(iv) {
			return ResolvedRange{}, fmt.Errorf("unsupported interval %d, want one of %v", iv, ValidIntervals)
		}
		return ResolvedRange{Interval: iv}, nil

	case ModeLookback:
		name := strings.ToLower(strings.TrimSpace(r.Lookback))
		var since time.Time
		if name == "ytd" {
			since = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		} else {
			span, ok := lookbackSpans[name]
			if !ok {
				return ResolvedRange{}, fmt.Errorf("unknown lookback %q, want one of %v", r.Lookback, Lookbacks)
			}
			since = now.Add(-span)
		}
		return ResolvedRange{Interval: IntervalFor(now.Sub(since)), Since: since}, nil

	case ModeDateRange:
		from, err := time.Parse(dateLayout, r.From)
		if err != nil {
			return ResolvedRange{}, fmt.Errorf("invalid from date %q, expected YYYY-MM-DD", r.From)
		}
		to, err := time.Parse(dateLayout, r.To)
		if err != nil {
			return ResolvedRange{}, fmt.Errorf("invalid to date %q, expected YYYY-MM-DD", r.To)
		}
		if from.After(to) {
			return ResolvedRange{}, errors.New("from date is after to date")
		}
		if from.After(now) {
			return ResolvedRange{}, errors.New("from date is in the future")
		}
		// Kraken only serves the latest MaxBars bars, so the interval has to
		// reach from the start date up to now.
		until := to.Add(24 * time.Hour)
		return ResolvedRange{Interval: IntervalFor(now.Sub(from)), Since: from, Until: until}, nil

	default:
		return ResolvedRange{}, fmt.Errorf("unknown range mode %q", r.Mode)
	}
}

// Filter keeps the bars inside [Since, Until).
func (rr ResolvedRange) Filter(points []model.PricePoint) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		if !rr.Since.IsZero() && p.Time.Before(rr.Since) {
			continue
		}
		if !rr.Until.IsZero() && !p.Time.Before(rr.Until) {
			continue
		}
		out = append(out, p)
	}
	return out
}
