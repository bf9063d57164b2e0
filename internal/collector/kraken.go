package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"BandWatch/internal/httputil"
	"BandWatch/internal/model"
)

const DefaultKrakenURL = "https://api.kraken.com"

// KrakenOptions configures the Kraken public REST client.
type KrakenOptions struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Proxy         string
	Retry         httputil.RetryConfig
}

// KrakenFetcher implements Fetcher against Kraken's public market-data API.
type KrakenFetcher struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
	Retry   httputil.RetryConfig
}

// NewKrakenFetcher creates a rate-limited, retrying client with optional proxy support.
func NewKrakenFetcher(opts KrakenOptions) *KrakenFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultKrakenURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = httputil.DefaultRetry
	}

	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.Warn().Err(err).Msg("ignoring invalid proxy url, connecting to kraken directly")
		}
	}

	st := gobreaker.Settings{
		Name:    "kraken",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &KrakenFetcher{
		BaseURL: strings.TrimRight(opts.BaseURL, "/"),
		Client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		Limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		Breaker: gobreaker.NewCircuitBreaker(st),
		Retry:   opts.Retry,
	}
}

func (f *KrakenFetcher) Name() string { return "kraken" }

// breakerSuccess counts only transport and HTTP status failures against the
// breaker; a rejected pair or bad payload says nothing about Kraken's health.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason != ReasonNetwork && fe.Reason != ReasonStatus
	}
	return false
}

// krakenEnvelope is the response wrapper shared by all public endpoints.
type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (f *KrakenFetcher) FetchOHLC(ctx context.Context, pair string, interval int, since time.Time) ([]model.PricePoint, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("interval", strconv.Itoa(interval))
	if !since.IsZero() {
		params.Set("since", strconv.FormatInt(since.Unix(), 10))
	}

	body, err := f.get(ctx, "/0/public/OHLC", params, pair)
	if err != nil {
		return nil, err
	}
	points, err := decodeOHLC(body)
	if err != nil {
		return nil, withPair(err, pair)
	}

	log.Debug().Str("pair", pair).Int("interval", interval).Int("bars", len(points)).Msg("kraken ohlc fetched")
	return points, nil
}

func (f *KrakenFetcher) ListPairs(ctx context.Context) ([]string, error) {
	body, err := f.get(ctx, "/0/public/AssetPairs", nil, "")
	if err != nil {
		return nil, err
	}
	result, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	var pairs map[string]json.RawMessage
	if err := json.Unmarshal(result, &pairs); err != nil {
		return nil, &FetchError{Reason: ReasonDecode, Err: err}
	}
	out := make([]string, 0, len(pairs))
	for k := range pairs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (f *KrakenFetcher) get(ctx context.Context, path string, params url.Values, pair string) ([]byte, error) {
	if err := f.Limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Reason: ReasonNetwork, Pair: pair, Err: err}
	}

	endpoint := f.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	out, err := f.Breaker.Execute(func() (interface{}, error) {
		resp, err := httputil.Do(ctx, f.Client, f.Retry, func() (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", "bandwatch/1.0")
			return req, nil
		})
		if err != nil {
			var se *httputil.StatusError
			if errors.As(err, &se) {
				return nil, &FetchError{Reason: ReasonStatus, Pair: pair, Err: err}
			}
			return nil, &FetchError{Reason: ReasonNetwork, Pair: pair, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{Reason: ReasonNetwork, Pair: pair, Err: fmt.Errorf("read body: %w", err)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &FetchError{Reason: ReasonStatus, Pair: pair, Err: fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))}
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Reason: ReasonUnavailable, Pair: pair, Err: err}
		}
		return nil, err
	}
	return out.([]byte), nil
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var env krakenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FetchError{Reason: ReasonDecode, Err: err}
	}
	if len(env.Error) > 0 {
		return nil, &FetchError{Reason: ReasonUpstream, Err: errors.New(strings.Join(env.Error, "; "))}
	}
	return env.Result, nil
}

// decodeOHLC parses rows of [time, open, high, low, close, vwap, volume, count].
// The result object carries one key per pair plus a "last" cursor.
func decodeOHLC(body []byte) ([]model.PricePoint, error) {
	result, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(result, &byKey); err != nil {
		return nil, &FetchError{Reason: ReasonDecode, Err: err}
	}

	var rows [][]json.RawMessage
	found := false
	for key, raw := range byKey {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, &FetchError{Reason: ReasonDecode, Err: fmt.Errorf("rows for %s: %w", key, err)}
		}
		found = true
		break
	}
	if !found {
		return nil, &FetchError{Reason: ReasonDecode, Err: errors.New("no OHLC data in response")}
	}

	points := make([]model.PricePoint, 0, len(rows))
	for i, row := range rows {
		p, err := parseRow(row)
		if err != nil {
			return nil, &FetchError{Reason: ReasonDecode, Err: fmt.Errorf("row %d: %w", i, err)}
		}
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

func parseRow(row []json.RawMessage) (model.PricePoint, error) {
	if len(row) < 8 {
		return model.PricePoint{}, fmt.Errorf("expected 8 fields, got %d", len(row))
	}

	var ts float64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return model.PricePoint{}, fmt.Errorf("time: %w", err)
	}

	vals := make([]float64, 6)
	for i := range vals {
		v, err := parseDecimal(row[i+1])
		if err != nil {
			return model.PricePoint{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	var count float64
	if err := json.Unmarshal(row[7], &count); err != nil {
		return model.PricePoint{}, fmt.Errorf("count: %w", err)
	}

	return model.PricePoint{
		Time:   time.Unix(int64(ts), 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		VWAP:   vals[4],
		Volume: vals[5],
		Count:  count,
	}, nil
}

// parseDecimal accepts Kraken's quoted decimal strings and bare numbers.
func parseDecimal(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func withPair(err error, pair string) error {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Pair == "" {
		fe.Pair = pair
	}
	return err
}
