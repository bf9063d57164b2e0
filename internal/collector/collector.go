package collector

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"BandWatch/internal/model"
)

// MockFetcher returns controllable generated data for development and testing.
type MockFetcher struct {
	Price  float64
	Points []model.PricePoint
	Pairs  []string
	Err    error
	Now    func() time.Time
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchOHLC(_ context.Context, _ string, interval int, since time.Time) ([]model.PricePoint, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Points != nil {
		return m.Points, nil
	}
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	return generateMockBars(m.Price, interval, since, now), nil
}

func (m *MockFetcher) ListPairs(_ context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Pairs != nil {
		return m.Pairs, nil
	}
	return []string{"XETHZUSD", "XXBTZEUR", "XXBTZUSD"}, nil
}

// generateMockBars produces a deterministic oscillating series ending at now,
// at most MaxBars long, so every band regime shows up.
func generateMockBars(basePrice float64, interval int, since, now time.Time) []model.PricePoint {
	if basePrice <= 0 {
		basePrice = 100
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	step := time.Duration(interval) * time.Minute
	end := now.UTC().Truncate(step)

	count := MaxBars
	if !since.IsZero() {
		if n := int(end.Sub(since)/step) + 1; n < count {
			count = n
		}
	}
	if count < 0 {
		count = 0
	}

	bars := make([]model.PricePoint, count)
	for i := 0; i < count; i++ {
		x := float64(i)
		p := basePrice * (1 + 0.03*math.Sin(x/9) + 0.012*math.Sin(x/2.3) + 0.0002*x)
		bars[i] = model.PricePoint{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   p * 0.999,
			High:   p * 1.004,
			Low:    p * 0.995,
			Close:  p,
			VWAP:   p * 0.9995,
			Volume: 1000 + 10*x,
			Count:  float64(50 + i%17),
		}
	}
	return bars
}

// Collector resolves range selections and fetches price series.
type Collector struct {
	Fetcher Fetcher
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher) *Collector {
	return &Collector{Fetcher: fetcher, Now: time.Now}
}

// Fetch returns the series for pair over the selected range. Failures are
// always *FetchError.
func (c *Collector) Fetch(ctx context.Context, pair string, spec RangeSpec) (*model.PriceSeries, error) {
	pair = strings.TrimSpace(pair)
	if pair == "" {
		return nil, &FetchError{Reason: ReasonInvalidRequest, Err: errors.New("pair is required")}
	}

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	rr, err := spec.Resolve(now)
	if err != nil {
		return nil, &FetchError{Reason: ReasonInvalidRequest, Pair: pair, Err: err}
	}

	points, err := c.Fetcher.FetchOHLC(ctx, pair, rr.Interval, rr.Since)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Reason: ReasonNetwork, Pair: pair, Err: err}
		}
		log.Error().Err(err).Str("pair", pair).Str("source", c.Fetcher.Name()).Msg("fetch failed")
		return nil, err
	}

	points = rr.Filter(points)
	log.Info().Str("pair", pair).Str("mode", string(spec.Mode)).Int("interval", rr.Interval).
		Int("bars", len(points)).Str("source", c.Fetcher.Name()).Msg("series fetched")

	return &model.PriceSeries{
		Pair:      pair,
		Interval:  rr.Interval,
		Points:    points,
		FetchedAt: now,
	}, nil
}
