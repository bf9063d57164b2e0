package calculator

import (
	"errors"

	"BandWatch/internal/model"
)

var (
	ErrInvalidWindow     = errors.New("band window must be positive")
	ErrInvalidMultiplier = errors.New("band multiplier must not be negative")
)

// ValidateParams rejects configurations the band engine cannot run with.
func ValidateParams(p model.BandParams) error {
	if p.Window <= 0 {
		return ErrInvalidWindow
	}
	if p.Multiplier < 0 {
		return ErrInvalidMultiplier
	}
	return nil
}

// ComputeBands returns one BandPoint per input bar, in input order.
//
// The first Window-1 points carry no statistics. From there on the moving
// average is the mean close over the trailing window and the deviation is the
// sample standard deviation (n-1) over the same window; the bands sit
// Multiplier deviations either side of the average. A window of 1 has an
// average but no deviation, so its bands stay undefined.
func ComputeBands(points []model.PricePoint, p model.BandParams) ([]model.BandPoint, error) {
	if err := ValidateParams(p); err != nil {
		return nil, err
	}

	out := make([]model.BandPoint, len(points))
	closes := extractCloses(points)
	w := p.Window

	for i, pt := range points {
		out[i] = model.BandPoint{Time: pt.Time, Close: pt.Close}
		if i < w-1 {
			continue
		}

		avg, err := CalculateSMA(closes[:i+1], w)
		if err != nil {
			return nil, err
		}
		out[i].MovingAverage = float64Ptr(avg)
		if w < 2 {
			continue
		}

		sd, err := SampleStdDev(closes[i-w+1 : i+1])
		if err != nil {
			return nil, err
		}
		out[i].StdDev = float64Ptr(sd)
		out[i].UpperBand = float64Ptr(avg + p.Multiplier*sd)
		out[i].LowerBand = float64Ptr(avg - p.Multiplier*sd)
	}
	return out, nil
}

func float64Ptr(v float64) *float64 { return &v }
