package calculator

import (
	"errors"
	"math"

	"BandWatch/internal/model"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	return mean(prices[len(prices)-period:]), nil
}

// SampleStdDev returns the standard deviation of values with one degree of
// freedom removed (divides by n-1).
func SampleStdDev(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, errors.New("sample standard deviation needs at least 2 values")
	}
	return sampleStdDev(values, mean(values)), nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev is two-pass around a precomputed mean so a flat window yields exactly 0.
func sampleStdDev(values []float64, avg float64) float64 {
	ss := 0.0
	for _, v := range values {
		d := v - avg
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func extractCloses(points []model.PricePoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return closes
}
