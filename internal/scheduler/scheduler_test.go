package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BandWatch/internal/collector"
	"BandWatch/internal/metrics"
	"BandWatch/internal/model"
	"BandWatch/internal/recorder"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Send(text string) error {
	return f.SendWithRetry(context.Background(), text, 0)
}

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// bars builds hourly bars from closes.
func bars(closes ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{Time: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

// flatThen builds 20 flat committed bars, one committed bar closing at last,
// and a flat bar still in progress.
func flatThen(last float64) []model.PricePoint {
	closes := make([]float64, 22)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = last
	return bars(closes...)
}

func newTestScheduler(t *testing.T, fetcher collector.Fetcher, n *fakeNotifier, rec recorder.Recorder) *Scheduler {
	t.Helper()
	col := collector.NewCollector(fetcher)
	col.Now = func() time.Time { return t0.Add(24 * time.Hour) }
	watch := WatchConfig{Pairs: []string{"XXBTZUSD"}, Interval: 60, Params: model.DefaultBandParams()}
	return NewScheduler(context.Background(), col, n, rec, metrics.New(nil), watch)
}

func TestCheckPair_AlertsOnceForNewSignal(t *testing.T) {
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer rec.Close()

	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: flatThen(200)}, n, rec)

	last, err := s.CheckPair("XXBTZUSD")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.SignalSell, last.Signal)

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "XXBTZUSD SELL")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.AlertsTotal))

	// same bar again is not re-alerted
	_, err = s.CheckPair("XXBTZUSD")
	require.NoError(t, err)
	assert.Len(t, n.messages(), 1)

	events, err := rec.RecentSignals("XXBTZUSD", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, t0.Add(20*time.Hour), events[0].BarTime)
}

func TestCheckPair_NoopRecorderStillDeduplicates(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: flatThen(10)}, n, recorder.NewNoopRecorder())

	for i := 0; i < 3; i++ {
		last, err := s.CheckPair("XXBTZUSD")
		require.NoError(t, err)
		assert.Equal(t, model.SignalBuy, last.Signal)
	}
	assert.Len(t, n.messages(), 1)
}

func TestCheckPair_HoldDoesNotAlert(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: flatThen(100)}, n, nil)

	last, err := s.CheckPair("XXBTZUSD")
	require.NoError(t, err)
	assert.Equal(t, model.SignalHold, last.Signal)
	assert.Empty(t, n.messages())
}

func TestCheckPair_IgnoresBarInProgress(t *testing.T) {
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer rec.Close()

	points := flatThen(100)
	points[len(points)-1].Close = 300

	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: points}, n, rec)

	last, err := s.CheckPair("XXBTZUSD")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, model.SignalHold, last.Signal)
	assert.Equal(t, t0.Add(20*time.Hour), last.Time)
	assert.Empty(t, n.messages())

	events, err := rec.RecentSignals("XXBTZUSD", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckPair_FetchFailure(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Err: errors.New("dial tcp: timeout")}, n, nil)

	_, err := s.CheckPair("XXBTZUSD")
	var fe *collector.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, collector.ReasonNetwork, fe.Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.FetchTotal.WithLabelValues("network")))
	assert.Empty(t, n.messages())
}

func TestCheckPair_NilNotifier(t *testing.T) {
	col := collector.NewCollector(&collector.MockFetcher{Points: flatThen(200)})
	s := NewScheduler(context.Background(), col, nil, nil, nil, WatchConfig{Interval: 60, Params: model.DefaultBandParams()})

	last, err := s.CheckPair("XXBTZUSD")
	require.NoError(t, err)
	assert.Equal(t, model.SignalSell, last.Signal)
}

func TestRunWatchNow(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: flatThen(200)}, n, nil)
	s.Watch.Pairs = []string{"XXBTZUSD", "XETHZUSD"}

	s.RunWatchNow()
	assert.Len(t, n.messages(), 2)
	assert.False(t, s.lastRun.IsZero())
}

func TestHandleCommand(t *testing.T) {
	n := &fakeNotifier{}
	s := newTestScheduler(t, &collector.MockFetcher{Points: flatThen(200)}, n, nil)

	reply := s.HandleCommand("/signals xxbtzusd")
	assert.Contains(t, reply, "XXBTZUSD")
	assert.Contains(t, reply, "Buy: 0 | Sell: 1 | Hold: 1")

	assert.Equal(t, "Usage: /signals PAIR", s.HandleCommand("/signals"))

	reply = s.HandleCommand("/watch")
	assert.Contains(t, reply, "XXBTZUSD")
	assert.Contains(t, reply, "No signals recorded yet")

	assert.Contains(t, s.HandleCommand("/help"), "/signals PAIR")
	assert.Contains(t, s.HandleCommand("hello"), "/watch")
}

func TestHandleCommand_NotEnoughData(t *testing.T) {
	s := newTestScheduler(t, &collector.MockFetcher{Points: bars(1, 2, 3)}, &fakeNotifier{}, nil)
	assert.Contains(t, s.HandleCommand("/signals XXBTZUSD"), "not enough data")
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(t, &collector.MockFetcher{}, &fakeNotifier{}, nil)
	require.NoError(t, s.RegisterWatch("0 */5 * * * *"))
	require.NoError(t, s.RegisterSweep("0 * * * * *", func() int { return 3 }))
	assert.Len(t, s.Cron.Entries(), 2)

	assert.Error(t, s.RegisterWatch("not a cron"))
}
