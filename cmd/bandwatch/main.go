package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"BandWatch/internal/collector"
	"BandWatch/internal/config"
	"BandWatch/internal/httputil"
	"BandWatch/internal/logger"
)

var (
	configPath string
	logLevel   string
	useMock    bool
)

var rootCmd = &cobra.Command{
	Use:   "bandwatch",
	Short: "Volatility band dashboard and signal watcher for Kraken pairs",
	Long: `BandWatch fetches OHLC bars from Kraken's public API, computes a rolling
mean with standard deviation bands, and marks closes outside the bands as
buy or sell signals. Run without a subcommand to start the dashboard.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $CONFIG_PATH or configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use generated bars instead of Kraken")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates config and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if useMock {
		cfg.Exchange.Mock = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	if cfg.Exchange.Mock {
		return &collector.MockFetcher{Price: 30000}
	}
	retry := httputil.DefaultRetry
	retry.MaxAttempts = cfg.Exchange.MaxRetries
	return collector.NewKrakenFetcher(collector.KrakenOptions{
		BaseURL:       cfg.Exchange.BaseURL,
		Timeout:       cfg.Exchange.Timeout,
		RatePerSecond: cfg.Exchange.RatePerSecond,
		Burst:         cfg.Exchange.Burst,
		Proxy:         cfg.Proxy,
		Retry:         retry,
	})
}

func fmtTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
