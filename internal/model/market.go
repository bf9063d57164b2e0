package model

import "time"

// PricePoint is a single OHLC bar as returned by the exchange.
type PricePoint struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	VWAP   float64   `json:"vwap"`
	Volume float64   `json:"volume"`
	Count  float64   `json:"count"`
}

// PriceSeries holds the bars fetched for one pair, oldest first.
type PriceSeries struct {
	Pair      string       `json:"pair"`
	Interval  int          `json:"interval"` // minutes
	Points    []PricePoint `json:"points"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}
