package recorder

import (
	"time"

	"BandWatch/internal/model"
)

// FetchRun is the metadata of one exchange fetch. Bars themselves are not stored.
type FetchRun struct {
	Pair     string
	Source   string
	Mode     string
	Interval int
	Bars     int
	Outcome  string // "ok" or the failure reason
	Duration time.Duration
	At       time.Time
}

// SignalEvent is a buy or sell classification at one bar.
type SignalEvent struct {
	Pair          string
	Interval      int
	BarTime       time.Time
	Signal        model.Signal
	Close         float64
	MovingAverage float64
	UpperBand     float64
	LowerBand     float64
	RecordedAt    time.Time
}

// Recorder persists fetch history and signal events for later analysis.
type Recorder interface {
	RecordFetch(run *FetchRun) error
	// RecordSignal stores evt and reports whether it was new. The same
	// pair, interval, bar time and signal is stored only once.
	RecordSignal(evt *SignalEvent) (bool, error)
	RecentSignals(pair string, limit int) ([]SignalEvent, error)
	Close() error
}
