package dashboard

import (
	"time"

	"BandWatch/internal/calculator"
	"BandWatch/internal/collector"
	"BandWatch/internal/model"
	"BandWatch/internal/session"
)

// PriceView is the close line of the fetched series.
type PriceView struct {
	SessionID string              `json:"session_id"`
	Pair      string              `json:"pair"`
	Interval  int                 `json:"interval"`
	Range     collector.RangeSpec `json:"range"`
	Params    model.BandParams    `json:"params"`
	Time      []time.Time         `json:"time"`
	Close     []float64           `json:"close"`
	High      float64             `json:"high"`
	Low       float64             `json:"low"`
	Position  *float64            `json:"position"`
	Warning   string              `json:"warning,omitempty"`
}

// BandsView is the band overlay. Undefined statistics are null so the
// chart leaves gaps during warm-up.
type BandsView struct {
	Pair    string           `json:"pair"`
	Params  model.BandParams `json:"params"`
	Time    []time.Time      `json:"time"`
	Close   []float64        `json:"close"`
	Upper   []*float64       `json:"upper"`
	Lower   []*float64       `json:"lower"`
	Average []*float64       `json:"average"`
}

type MarkerSet struct {
	Time  []time.Time `json:"time"`
	Close []float64   `json:"close"`
}

// SignalsView is the close line over classified points plus buy and sell markers.
type SignalsView struct {
	Pair    string              `json:"pair"`
	Params  model.BandParams    `json:"params"`
	Time    []time.Time         `json:"time"`
	Close   []float64           `json:"close"`
	Buys    MarkerSet           `json:"buys"`
	Sells   MarkerSet           `json:"sells"`
	Summary model.SignalSummary `json:"summary"`
}

type CandlesView struct {
	Pair     string      `json:"pair"`
	Interval int         `json:"interval"`
	Time     []time.Time `json:"time"`
	Open     []float64   `json:"open"`
	High     []float64   `json:"high"`
	Low      []float64   `json:"low"`
	Close    []float64   `json:"close"`
}

func buildPriceView(st *session.State) PriceView {
	v := PriceView{
		SessionID: st.ID,
		Pair:      st.Pair,
		Range:     st.Range,
		Params:    st.Params,
		Time:      []time.Time{},
		Close:     []float64{},
	}
	series := st.Series
	if series == nil {
		return v
	}
	v.Interval = series.Interval
	for _, p := range series.Points {
		v.Time = append(v.Time, p.Time)
		v.Close = append(v.Close, p.Close)
	}
	if high, low, err := calculator.CalculateRange(series.Points); err == nil {
		v.High, v.Low = high, low
		if pos, err := calculator.CalculatePosition(series.Points[len(series.Points)-1].Close, high, low); err == nil {
			v.Position = &pos
		}
	}
	return v
}

func buildBandsView(pair string, a *model.Analysis) BandsView {
	n := len(a.Bands)
	v := BandsView{
		Pair:    pair,
		Params:  a.Params,
		Time:    make([]time.Time, 0, n),
		Close:   make([]float64, 0, n),
		Upper:   make([]*float64, 0, n),
		Lower:   make([]*float64, 0, n),
		Average: make([]*float64, 0, n),
	}
	for _, b := range a.Bands {
		v.Time = append(v.Time, b.Time)
		v.Close = append(v.Close, b.Close)
		v.Upper = append(v.Upper, b.UpperBand)
		v.Lower = append(v.Lower, b.LowerBand)
		v.Average = append(v.Average, b.MovingAverage)
	}
	return v
}

func buildSignalsView(pair string, a *model.Analysis) SignalsView {
	v := SignalsView{
		Pair:    pair,
		Params:  a.Params,
		Time:    make([]time.Time, 0, len(a.Classified)),
		Close:   make([]float64, 0, len(a.Classified)),
		Buys:    MarkerSet{Time: []time.Time{}, Close: []float64{}},
		Sells:   MarkerSet{Time: []time.Time{}, Close: []float64{}},
		Summary: a.Summary,
	}
	for _, p := range a.Classified {
		v.Time = append(v.Time, p.Time)
		v.Close = append(v.Close, p.Close)
		switch p.Signal {
		case model.SignalBuy:
			v.Buys.Time = append(v.Buys.Time, p.Time)
			v.Buys.Close = append(v.Buys.Close, p.Close)
		case model.SignalSell:
			v.Sells.Time = append(v.Sells.Time, p.Time)
			v.Sells.Close = append(v.Sells.Close, p.Close)
		}
	}
	return v
}

func buildCandlesView(series *model.PriceSeries) CandlesView {
	n := series.Len()
	v := CandlesView{
		Pair:     series.Pair,
		Interval: series.Interval,
		Time:     make([]time.Time, 0, n),
		Open:     make([]float64, 0, n),
		High:     make([]float64, 0, n),
		Low:      make([]float64, 0, n),
		Close:    make([]float64, 0, n),
	}
	for _, p := range series.Points {
		v.Time = append(v.Time, p.Time)
		v.Open = append(v.Open, p.Open)
		v.High = append(v.High, p.High)
		v.Low = append(v.Low, p.Low)
		v.Close = append(v.Close, p.Close)
	}
	return v
}
