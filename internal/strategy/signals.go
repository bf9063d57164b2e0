package strategy

import (
	"errors"
	"fmt"
	"time"

	"BandWatch/internal/calculator"
	"BandWatch/internal/model"
)

// ErrNotEnoughData means the series is shorter than the band window, so no
// point could be classified.
var ErrNotEnoughData = errors.New("not enough data to compute bands")

// classify compares a close against its band. A close equal to a collapsed
// band (zero deviation) is a hold.
func classify(p model.BandPoint) model.Signal {
	switch {
	case p.Close < *p.LowerBand:
		return model.SignalBuy
	case p.Close > *p.UpperBand:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}

// ComputeSignals drops points without a band and classifies the rest.
// The input slice is left untouched.
func ComputeSignals(bands []model.BandPoint) []model.BandPoint {
	out := make([]model.BandPoint, 0, len(bands))
	for _, p := range bands {
		if !p.Defined() {
			continue
		}
		p.Signal = classify(p)
		out = append(out, p)
	}
	return out
}

// Summarize counts buys, sells and holds and keeps the latest point.
func Summarize(classified []model.BandPoint) model.SignalSummary {
	s := model.SignalSummary{Classified: len(classified)}
	for _, p := range classified {
		switch p.Signal {
		case model.SignalBuy:
			s.Buys++
		case model.SignalSell:
			s.Sells++
		default:
			s.Holds++
		}
	}
	if n := len(classified); n > 0 {
		last := classified[n-1]
		s.Last = &last
	}
	return s
}

// Analyze runs the band engine and signal classification over a series.
// It returns ErrNotEnoughData when nothing could be classified.
func Analyze(series *model.PriceSeries, params model.BandParams) (*model.Analysis, error) {
	var points []model.PricePoint
	if series != nil {
		points = series.Points
	}

	bands, err := calculator.ComputeBands(points, params)
	if err != nil {
		return nil, err
	}

	classified := ComputeSignals(bands)
	if len(classified) == 0 {
		return nil, fmt.Errorf("%w: window %d, %d bars", ErrNotEnoughData, params.Window, len(points))
	}

	return &model.Analysis{
		Params:     params,
		Bands:      bands,
		Classified: classified,
		Summary:    Summarize(classified),
		ComputedAt: time.Now(),
	}, nil
}
