package model

import "time"

// Signal is the discrete classification of a close against its band.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// BandParams configures the band indicator.
type BandParams struct {
	Window     int     `json:"window" yaml:"window"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// DefaultBandParams returns the 20-period, 2 standard deviation band.
func DefaultBandParams() BandParams {
	return BandParams{Window: 20, Multiplier: 2}
}

// BandPoint is the band state at one bar. Nil statistics are undefined,
// which is the case for the first Window-1 bars of a series.
type BandPoint struct {
	Time          time.Time `json:"time"`
	Close         float64   `json:"close"`
	MovingAverage *float64  `json:"moving_average"`
	StdDev        *float64  `json:"std_dev"`
	UpperBand     *float64  `json:"upper_band"`
	LowerBand     *float64  `json:"lower_band"`
	Signal        Signal    `json:"signal"`
}

// Defined reports whether the average and both bands are present.
func (p BandPoint) Defined() bool {
	return p.MovingAverage != nil && p.UpperBand != nil && p.LowerBand != nil
}

// SignalSummary counts classified points by signal.
type SignalSummary struct {
	Classified int        `json:"classified"`
	Buys       int        `json:"buys"`
	Sells      int        `json:"sells"`
	Holds      int        `json:"holds"`
	Last       *BandPoint `json:"last,omitempty"`
}

// Analysis is everything derived from one series with one set of params.
type Analysis struct {
	Params     BandParams    `json:"params"`
	Bands      []BandPoint   `json:"bands"`
	Classified []BandPoint   `json:"classified"`
	Summary    SignalSummary `json:"summary"`
	ComputedAt time.Time     `json:"computed_at"`
}
