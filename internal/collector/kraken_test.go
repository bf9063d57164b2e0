package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandWatch/internal/httputil"
)

const ohlcBody = `{"error":[],"result":{"XXBTZUSD":[
[1700003600,"37010.0","37100.5","36990.0","37050.2","37040.1","12.50000000",310],
[1700000000,"37000.0","37050.0","36900.0","37010.0","36980.4","10.25000000",250]
],"last":1700003600}}`

func newTestKraken(t *testing.T, h http.HandlerFunc) *KrakenFetcher {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewKrakenFetcher(KrakenOptions{
		BaseURL:       srv.URL,
		Timeout:       2 * time.Second,
		RatePerSecond: 1000,
		Burst:         10,
		Retry:         httputil.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
}

func TestKraken_FetchOHLC(t *testing.T) {
	var gotQuery string
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/OHLC", r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, ohlcBody)
	})

	since := time.Unix(1699990000, 0)
	points, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, since)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Contains(t, gotQuery, "pair=XXBTZUSD")
	assert.Contains(t, gotQuery, "interval=60")
	assert.Contains(t, gotQuery, "since=1699990000")

	// sorted oldest first regardless of response order
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), points[0].Time)
	assert.InDelta(t, 37010.0, points[0].Close, 1e-9)
	assert.InDelta(t, 36900.0, points[0].Low, 1e-9)
	assert.InDelta(t, 10.25, points[0].Volume, 1e-9)
	assert.InDelta(t, 250, points[0].Count, 1e-9)
	assert.InDelta(t, 37050.2, points[1].Close, 1e-9)
}

func TestKraken_FetchOHLC_NoSinceOmitsParam(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("since"))
		fmt.Fprint(w, ohlcBody)
	})
	_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
	require.NoError(t, err)
}

func TestKraken_UpstreamError(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EQuery:Unknown asset pair"]}`)
	})

	_, err := f.FetchOHLC(context.Background(), "NOPE", 60, time.Time{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonUpstream, fe.Reason)
	assert.Equal(t, "NOPE", fe.Pair)
	assert.Contains(t, fe.Error(), "Unknown asset pair")
}

func TestKraken_ServerErrorIsStatus(t *testing.T) {
	var attempts atomic.Int32
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonStatus, fe.Reason)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestKraken_ClientErrorIsStatus(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonStatus, fe.Reason)
}

func TestKraken_MalformedBody(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":[],"result":{"XXBTZUSD":[[1700000000,"abc","1","1","1","1","1",1]],"last":1}}`)
	})

	_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonDecode, fe.Reason)
	assert.Equal(t, "XXBTZUSD", fe.Pair)
}

func TestKraken_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var attempts atomic.Int32
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
		require.Error(t, err)
	}
	before := attempts.Load()

	_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonUnavailable, fe.Reason)
	assert.Equal(t, before, attempts.Load(), "open breaker must not reach the server")
}

func TestKraken_UpstreamErrorsDoNotTripBreaker(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `not json`)
	})

	for i := 0; i < 8; i++ {
		_, err := f.FetchOHLC(context.Background(), "XXBTZUSD", 60, time.Time{})
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, ReasonDecode, fe.Reason)
	}
}

func TestKraken_ListPairs(t *testing.T) {
	f := newTestKraken(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/AssetPairs", r.URL.Path)
		fmt.Fprint(w, `{"error":[],"result":{"XXBTZUSD":{"altname":"XBTUSD"},"XETHZEUR":{"altname":"ETHEUR"},"ADAUSD":{}}}`)
	})

	pairs, err := f.ListPairs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ADAUSD", "XETHZEUR", "XXBTZUSD"}, pairs)
}

func TestParseDecimal(t *testing.T) {
	v, err := parseDecimal([]byte(`"0.00012345"`))
	require.NoError(t, err)
	assert.InDelta(t, 0.00012345, v, 1e-15)

	v, err = parseDecimal([]byte(`42.5`))
	require.NoError(t, err)
	assert.InDelta(t, 42.5, v, 1e-12)

	_, err = parseDecimal([]byte(`"x"`))
	assert.Error(t, err)
}

func TestNewKrakenFetcher_InvalidProxyIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	f := NewKrakenFetcher(KrakenOptions{Proxy: "://not a url"})
	tr, ok := f.Client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)
	assert.Contains(t, buf.String(), "invalid proxy url")
}
