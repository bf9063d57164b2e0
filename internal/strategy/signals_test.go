package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandWatch/internal/calculator"
	"BandWatch/internal/model"
)

func ptr(v float64) *float64 { return &v }

func band(close, ma, sd, k float64) model.BandPoint {
	return model.BandPoint{
		Close:         close,
		MovingAverage: ptr(ma),
		StdDev:        ptr(sd),
		UpperBand:     ptr(ma + k*sd),
		LowerBand:     ptr(ma - k*sd),
	}
}

func seriesOf(closes ...float64) *model.PriceSeries {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &model.PriceSeries{Pair: "XBTUSD", Interval: 60}
	for i, c := range closes {
		s.Points = append(s.Points, model.PricePoint{Time: base.Add(time.Duration(i) * time.Hour), Close: c})
	}
	return s
}

func TestComputeSignals_Classification(t *testing.T) {
	tests := []struct {
		name  string
		point model.BandPoint
		want  model.Signal
	}{
		{"below lower band buys", band(90, 100, 2, 2), model.SignalBuy},
		{"above upper band sells", band(110, 100, 2, 2), model.SignalSell},
		{"inside band holds", band(101, 100, 2, 2), model.SignalHold},
		{"on lower band holds", band(96, 100, 2, 2), model.SignalHold},
		{"on upper band holds", band(104, 100, 2, 2), model.SignalHold},
		{"collapsed band at average holds", band(100, 100, 0, 2), model.SignalHold},
		{"collapsed band above sells", band(100.5, 100, 0, 2), model.SignalSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ComputeSignals([]model.BandPoint{tt.point})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Signal)
		})
	}
}

func TestComputeSignals_DropsUndefined(t *testing.T) {
	in := []model.BandPoint{
		{Close: 1},
		{Close: 2, MovingAverage: ptr(2)},
		band(3, 2, 1, 2),
	}
	out := ComputeSignals(in)
	require.Len(t, out, 1)
	assert.Equal(t, 3.0, out[0].Close)
}

func TestComputeSignals_Empty(t *testing.T) {
	assert.Empty(t, ComputeSignals(nil))
	assert.Empty(t, ComputeSignals([]model.BandPoint{{Close: 1}, {Close: 2}}))
}

func TestComputeSignals_DoesNotMutateInput(t *testing.T) {
	in := []model.BandPoint{band(90, 100, 2, 2)}
	_ = ComputeSignals(in)
	assert.Equal(t, model.SignalHold, in[0].Signal)
}

func TestSummarize(t *testing.T) {
	classified := ComputeSignals([]model.BandPoint{
		band(90, 100, 2, 2),
		band(110, 100, 2, 2),
		band(101, 100, 2, 2),
		band(80, 100, 2, 2),
	})
	s := Summarize(classified)
	assert.Equal(t, 4, s.Classified)
	assert.Equal(t, 2, s.Buys)
	assert.Equal(t, 1, s.Sells)
	assert.Equal(t, 1, s.Holds)
	require.NotNil(t, s.Last)
	assert.Equal(t, 80.0, s.Last.Close)

	empty := Summarize(nil)
	assert.Zero(t, empty.Classified)
	assert.Nil(t, empty.Last)
}

func TestAnalyze_FlatThenSpike(t *testing.T) {
	closes := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	closes = append(closes, 200)

	a, err := Analyze(seriesOf(closes...), model.DefaultBandParams())
	require.NoError(t, err)
	assert.Len(t, a.Bands, 21)
	require.Len(t, a.Classified, 2)

	assert.Equal(t, model.SignalHold, a.Classified[0].Signal)
	assert.Equal(t, model.SignalSell, a.Classified[1].Signal)
	assert.Equal(t, 1, a.Summary.Sells)
	assert.Equal(t, 0, a.Summary.Buys)
}

func TestAnalyze_NotEnoughData(t *testing.T) {
	_, err := Analyze(seriesOf(1, 2, 3, 4, 5), model.DefaultBandParams())
	assert.ErrorIs(t, err, ErrNotEnoughData)

	_, err = Analyze(seriesOf(), model.DefaultBandParams())
	assert.ErrorIs(t, err, ErrNotEnoughData)

	_, err = Analyze(nil, model.DefaultBandParams())
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestAnalyze_InvalidParams(t *testing.T) {
	_, err := Analyze(seriesOf(1, 2, 3), model.BandParams{Window: 0, Multiplier: 2})
	assert.ErrorIs(t, err, calculator.ErrInvalidWindow)

	_, err = Analyze(seriesOf(1, 2, 3), model.BandParams{Window: 2, Multiplier: -1})
	assert.ErrorIs(t, err, calculator.ErrInvalidMultiplier)
}
