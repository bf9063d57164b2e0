package notifier

import (
	"bytes"
	"context"
	"encoding/json"
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

	"BandWatch/internal/model"
	"BandWatch/internal/recorder"
)

func newTestNotifier(t *testing.T, h http.HandlerFunc) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("TOKEN", "42", "")
	n.APIBase = srv.URL
	n.RetryBase = time.Millisecond
	return n
}

func TestSend(t *testing.T) {
	var payload map[string]string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprint(w, `{"ok":true}`)
	})

	require.NoError(t, n.Send("hello"))
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "hello", payload["text"])
	assert.Equal(t, "HTML", payload["parse_mode"])
}

func TestSend_APIError(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false}`)
	})
	assert.ErrorContains(t, n.Send("x"), "status 401")
}

func TestSendWithRetry(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	require.NoError(t, n.SendWithRetry(context.Background(), "x", 3))
	assert.EqualValues(t, 3, calls.Load())
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	err := n.SendWithRetry(context.Background(), "x", 2)
	assert.ErrorContains(t, err, "all 3 retries exhausted")
	assert.EqualValues(t, 3, calls.Load())
}

func TestStartPolling_DispatchesCommands(t *testing.T) {
	var polls atomic.Int32
	replies := make(chan string, 4)
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			if polls.Add(1) == 1 {
				fmt.Fprint(w, `{"ok":true,"result":[{"update_id":7,"message":{"text":" /help "}},{"update_id":8}]}`)
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		case "/botTOKEN/sendMessage":
			var p map[string]string
			json.NewDecoder(r.Body).Decode(&p)
			replies <- p["text"]
			fmt.Fprint(w, `{"ok":true}`)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(cmd string) string { return "got " + cmd })
		close(done)
	}()

	select {
	case reply := <-replies:
		assert.Equal(t, "got /help", reply)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
}

func ptr(v float64) *float64 { return &v }

func TestFormatSignalAlert(t *testing.T) {
	p := model.BandPoint{
		Time:          time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Close:         200,
		MovingAverage: ptr(105),
		StdDev:        ptr(22.36),
		UpperBand:     ptr(149.72),
		LowerBand:     ptr(60.28),
		Signal:        model.SignalSell,
	}
	msg := FormatSignalAlert("XXBTZUSD", p, model.DefaultBandParams())

	assert.Contains(t, msg, "XXBTZUSD SELL")
	assert.Contains(t, msg, "2024-03-01 12:00")
	assert.Contains(t, msg, "Upper: 149.7200")
	assert.Contains(t, msg, "20 bars, 2.00σ")
	assert.Contains(t, msg, "above the upper band")
}

func TestFormatSummary(t *testing.T) {
	last := model.BandPoint{
		Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: 100,
		MovingAverage: ptr(100), UpperBand: ptr(110), LowerBand: ptr(90), Signal: model.SignalHold,
	}
	a := &model.Analysis{
		Params:  model.DefaultBandParams(),
		Summary: model.SignalSummary{Classified: 10, Buys: 2, Sells: 1, Holds: 7, Last: &last},
	}
	msg := FormatSummary("XETHZUSD", a)

	assert.Contains(t, msg, "Buy: 2 | Sell: 1 | Hold: 7")
	assert.Contains(t, msg, "HOLD")
	assert.Contains(t, msg, "Band position: 50%")
}

func TestFormatRecentSignals(t *testing.T) {
	assert.Contains(t, FormatRecentSignals("XXBTZUSD", nil), "No signals recorded yet")

	msg := FormatRecentSignals("", []recorder.SignalEvent{
		{Pair: "XXBTZUSD", BarTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Signal: model.SignalBuy, Close: 61000},
	})
	assert.Contains(t, msg, "XXBTZUSD @ 61000.0000 (BUY)")
}

func TestFormatWatchStatus(t *testing.T) {
	assert.Contains(t, FormatWatchStatus(nil, 60, time.Time{}), "No pairs configured")

	msg := FormatWatchStatus([]string{"XXBTZUSD", "XETHZUSD"}, 240, time.Time{})
	assert.Contains(t, msg, "XXBTZUSD, XETHZUSD")
	assert.Contains(t, msg, "240 min")
	assert.Contains(t, msg, "never")
}

func TestNewTelegramNotifier_InvalidProxyIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	f := NewTelegramNotifier("TOKEN", "42", "://not a url")
	tr, ok := f.Client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)
	assert.Contains(t, buf.String(), "invalid proxy url")
}
