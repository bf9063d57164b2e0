package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"BandWatch/internal/model"
)

// SQLiteRecorder persists fetch runs and signal events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while the watcher writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			pair        TEXT NOT NULL,
			source      TEXT,
			mode        TEXT,
			interval    INTEGER,
			bars        INTEGER,
			outcome     TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_ts ON fetch_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS signal_events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at    INTEGER NOT NULL,
			pair           TEXT NOT NULL,
			interval       INTEGER NOT NULL,
			bar_time       INTEGER NOT NULL,
			signal         INTEGER NOT NULL,
			close          REAL,
			moving_average REAL,
			upper_band     REAL,
			lower_band     REAL,
			UNIQUE(pair, interval, bar_time, signal)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_pair_bar ON signal_events(pair, bar_time)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(run *FetchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := run.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO fetch_runs
		(timestamp, pair, source, mode, interval, bars, outcome, duration_ms)
		VALUES (?,?,?,?,?,?,?,?)`,
		at.Unix(), run.Pair, run.Source, run.Mode, run.Interval, run.Bars,
		run.Outcome, run.Duration.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordSignal(evt *SignalEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := r.db.Exec(`INSERT OR IGNORE INTO signal_events
		(recorded_at, pair, interval, bar_time, signal, close, moving_average, upper_band, lower_band)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.Pair, evt.Interval, evt.BarTime.Unix(), int(evt.Signal),
		evt.Close, evt.MovingAverage, evt.UpperBand, evt.LowerBand,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecentSignals returns the latest events for pair, newest bar first. An
// empty pair matches every pair.
func (r *SQLiteRecorder) RecentSignals(pair string, limit int) ([]SignalEvent, error) {
	if limit <= 0 {
		limit = 10
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT recorded_at, pair, interval, bar_time, signal,
		close, moving_average, upper_band, lower_band
		FROM signal_events
		WHERE ? = '' OR pair = ?
		ORDER BY bar_time DESC, id DESC
		LIMIT ?`, pair, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalEvent
	for rows.Next() {
		var (
			evt              SignalEvent
			recorded, barSec int64
			sig              int
		)
		if err := rows.Scan(&recorded, &evt.Pair, &evt.Interval, &barSec, &sig,
			&evt.Close, &evt.MovingAverage, &evt.UpperBand, &evt.LowerBand); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		evt.RecordedAt = time.Unix(recorded, 0).UTC()
		evt.BarTime = time.Unix(barSec, 0).UTC()
		evt.Signal = model.Signal(sig)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
