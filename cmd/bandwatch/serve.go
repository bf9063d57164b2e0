package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/dashboard"
	"BandWatch/internal/metrics"
	"BandWatch/internal/model"
	"BandWatch/internal/notifier"
	"BandWatch/internal/recorder"
	"BandWatch/internal/scheduler"
	"BandWatch/internal/session"
)

var runWatchOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard and the signal watcher",
	Long: `Start the HTTP dashboard. When watch.enabled is set, a cron job also checks
the configured pairs and sends Telegram alerts for new band crossings.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&runWatchOnStart, "watch-now", os.Getenv("RUN_ON_START") == "true", "Run the watch task once at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info().Msg("BandWatch starting")

	fetcher := newFetcher(cfg)
	log.Info().Str("source", fetcher.Name()).Msg("data source ready")
	col := collector.NewCollector(fetcher)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rec := openRecorder(cfg)
	defer rec.Close()

	store, sweep, err := openSessions(cfg)
	if err != nil {
		return err
	}

	params := model.BandParams{Window: cfg.Bands.Window, Multiplier: cfg.Bands.Multiplier}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tn *notifier.TelegramNotifier
	var alerts notifier.Notifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		alerts = tn
	} else {
		log.Warn().Msg("telegram not configured, alerts disabled")
	}

	sched := scheduler.NewScheduler(ctx, col, alerts, rec, m, scheduler.WatchConfig{
		Pairs:    cfg.Watch.Pairs,
		Interval: cfg.Watch.Interval,
		Params:   params,
	})
	if sweep != nil {
		if err := sched.RegisterSweep(cfg.Session.SweepCron, sweep); err != nil {
			return err
		}
	}
	if cfg.Watch.Enabled && len(cfg.Watch.Pairs) > 0 {
		if err := sched.RegisterWatch(cfg.Watch.Cron); err != nil {
			return err
		}
		if runWatchOnStart {
			go sched.RunWatchNow()
		}
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	srv := dashboard.NewServer(col, store, rec, m, dashboard.Options{
		Addr:         cfg.Server.Addr,
		APIKey:       cfg.Server.APIKey,
		AllowOrigin:  cfg.Server.AllowOrigin,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		SessionTTL:   cfg.Session.TTL,
		Params:       params,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutdown signal received, stopping")
	case err := <-errCh:
		return err
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dashboard shutdown")
	}
	log.Info().Msg("BandWatch stopped")
	return nil
}

func openRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Msg("create database directory, using noop recorder")
			return recorder.NewNoopRecorder()
		}
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// openSessions returns the configured store and, for the in-memory store,
// its sweep function.
func openSessions(cfg *config.Config) (session.Store, func() int, error) {
	if cfg.Session.Backend == "redis" {
		rs, err := session.NewRedisStore(cfg.Session.RedisAddr, cfg.Session.RedisPassword, cfg.Session.RedisDB, cfg.Session.TTL)
		if err != nil {
			return nil, nil, err
		}
		return rs, nil, nil
	}
	ms := session.NewMemoryStore(cfg.Session.TTL)
	return ms, ms.Sweep, nil
}
