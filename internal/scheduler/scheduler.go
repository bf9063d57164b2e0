package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"BandWatch/internal/collector"
	"BandWatch/internal/metrics"
	"BandWatch/internal/model"
	"BandWatch/internal/notifier"
	"BandWatch/internal/recorder"
	"BandWatch/internal/strategy"
)

// WatchConfig lists what the watch job checks on each run.
type WatchConfig struct {
	Pairs    []string
	Interval int
	Params   model.BandParams
}

// Scheduler manages the cron tasks and the bot commands.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics
	Watch     WatchConfig
	Ctx       context.Context

	mu      sync.Mutex
	lastRun time.Time
	// last alerted bar per pair, so a recorder without storage does not
	// repeat the same alert every run
	alerted map[string]string
}

// NewScheduler creates a new Scheduler. A nil notifier disables alerts.
func NewScheduler(ctx context.Context, col *collector.Collector, n notifier.Notifier, rec recorder.Recorder, m *metrics.Metrics, watch WatchConfig) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Collector: col,
		Notifier:  n,
		Recorder:  rec,
		Metrics:   m,
		Watch:     watch,
		Ctx:       ctx,
		alerted:   make(map[string]string),
	}
}

// RegisterWatch registers the periodic band check over the watch list.
func (s *Scheduler) RegisterWatch(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.watchTask); err != nil {
		return fmt.Errorf("register watch task: %w", err)
	}
	return nil
}

// RegisterSweep registers a periodic cleanup that returns how many items remain,
// such as expiring in-memory sessions.
func (s *Scheduler) RegisterSweep(spec string, sweep func() int) error {
	if _, err := s.Cron.AddFunc(spec, func() {
		n := sweep()
		s.Metrics.SetSessions(n)
		log.Debug().Int("sessions", n).Msg("session sweep")
	}); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Int("pairs", len(s.Watch.Pairs)).Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunWatchNow executes the watch task immediately.
func (s *Scheduler) RunWatchNow() {
	s.watchTask()
}

func (s *Scheduler) watchTask() {
	log.Info().Strs("pairs", s.Watch.Pairs).Msg("running watch task")
	for _, pair := range s.Watch.Pairs {
		if s.Ctx.Err() != nil {
			return
		}
		if _, err := s.CheckPair(pair); err != nil {
			log.Error().Err(err).Str("pair", pair).Msg("watch check failed")
		}
	}
	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}

// CheckPair fetches and analyzes one pair and alerts when the latest bar is a
// new buy or sell. It returns the latest classified point.
func (s *Scheduler) CheckPair(pair string) (*model.BandPoint, error) {
	a, err := s.analyze(pair, collector.RangeSpec{Mode: collector.ModeInterval, Interval: s.Watch.Interval})
	if err != nil {
		return nil, err
	}
	last := a.Summary.Last
	if last == nil || last.Signal == model.SignalHold {
		return last, nil
	}

	evt := &recorder.SignalEvent{
		Pair:          pair,
		Interval:      s.Watch.Interval,
		BarTime:       last.Time,
		Signal:        last.Signal,
		Close:         last.Close,
		MovingAverage: *last.MovingAverage,
		UpperBand:     *last.UpperBand,
		LowerBand:     *last.LowerBand,
	}
	isNew, err := s.Recorder.RecordSignal(evt)
	if err != nil {
		log.Error().Err(err).Str("pair", pair).Msg("record signal")
	}
	if !isNew || !s.markAlerted(pair, last) {
		return last, nil
	}

	log.Info().Str("pair", pair).Str("signal", last.Signal.String()).Time("bar", last.Time).Msg("new band signal")
	s.alert(notifier.FormatSignalAlert(pair, *last, a.Params))
	return last, nil
}

func (s *Scheduler) markAlerted(pair string, p *model.BandPoint) bool {
	key := fmt.Sprintf("%d/%s", p.Time.Unix(), p.Signal)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerted[pair] == key {
		return false
	}
	s.alerted[pair] = key
	return true
}

func (s *Scheduler) analyze(pair string, spec collector.RangeSpec) (*model.Analysis, error) {
	start := time.Now()
	series, err := s.Collector.Fetch(s.Ctx, pair, spec)
	outcome := "ok"
	var fe *collector.FetchError
	if errors.As(err, &fe) {
		outcome = string(fe.Reason)
	}
	elapsed := time.Since(start)
	s.Metrics.ObserveFetch(outcome, elapsed)

	run := &recorder.FetchRun{
		Pair:     pair,
		Source:   s.Collector.Fetcher.Name(),
		Mode:     string(spec.Mode),
		Interval: spec.Interval,
		Outcome:  outcome,
		Duration: elapsed,
	}
	if series != nil {
		run.Interval = series.Interval
		run.Bars = series.Len()
	}
	if rerr := s.Recorder.RecordFetch(run); rerr != nil {
		log.Error().Err(rerr).Msg("record fetch")
	}
	if err != nil {
		return nil, err
	}
	series.Points = committedBars(series.Points)

	start = time.Now()
	a, err := strategy.Analyze(series, s.Watch.Params)
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveCompute(time.Since(start), a.Summary.Buys, a.Summary.Sells, a.Summary.Holds)
	return a, nil
}

// committedBars drops the newest bar. Kraken's last OHLC row is the bar still
// in progress and its close moves until the interval ends.
func committedBars(points []model.PricePoint) []model.PricePoint {
	if len(points) == 0 {
		return points
	}
	return points[:len(points)-1]
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}

	switch strings.ToLower(fields[0]) {
	case "/signals":
		if len(fields) < 2 {
			return "Usage: /signals PAIR"
		}
		pair := strings.ToUpper(fields[1])
		a, err := s.analyze(pair, collector.RangeSpec{Mode: collector.ModeInterval, Interval: s.Watch.Interval})
		if err != nil {
			if errors.Is(err, strategy.ErrNotEnoughData) {
				return fmt.Sprintf("⚠️ %s: not enough data to compute bands", pair)
			}
			return fmt.Sprintf("❌ %s: %v", pair, err)
		}
		return notifier.FormatSummary(pair, a)

	case "/watch":
		s.mu.Lock()
		lastRun := s.lastRun
		s.mu.Unlock()

		reply := notifier.FormatWatchStatus(s.Watch.Pairs, s.Watch.Interval, lastRun)
		events, err := s.Recorder.RecentSignals("", 5)
		if err != nil {
			log.Error().Err(err).Msg("load recent signals")
			return reply
		}
		return reply + "\n\n" + notifier.FormatRecentSignals("", events)

	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) alert(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
		return
	}
	s.Metrics.AlertSent()
}
