package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"BandWatch/internal/collector"
	"BandWatch/internal/model"
	"BandWatch/internal/strategy"
)

var (
	bandsPair       string
	bandsInterval   int
	bandsLookback   string
	bandsFrom       string
	bandsTo         string
	bandsWindow     int
	bandsMultiplier float64
	bandsLast       int
	bandsJSON       bool
	bandsTimeout    time.Duration
)

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Fetch a pair and print its bands and signals",
	Long: `Fetch OHLC bars for one pair, compute the bands, and print the latest
band points with their signal plus buy/sell/hold counts.

Examples:
  bandwatch bands --pair XXBTZUSD
  bandwatch bands --pair XETHZUSD --lookback 3m --window 30
  bandwatch bands --pair XXBTZUSD --from 2024-01-01 --to 2024-01-31 --json`,
	RunE: runBands,
}

func init() {
	rootCmd.AddCommand(bandsCmd)

	bandsCmd.Flags().StringVar(&bandsPair, "pair", "XXBTZUSD", "Kraken asset pair")
	bandsCmd.Flags().IntVar(&bandsInterval, "interval", 0, "Bar interval in minutes (default 60)")
	bandsCmd.Flags().StringVar(&bandsLookback, "lookback", "", "Named window: 1w, 1m, 3m, 6m, 1y, 5y, ytd")
	bandsCmd.Flags().StringVar(&bandsFrom, "from", "", "Start date YYYY-MM-DD")
	bandsCmd.Flags().StringVar(&bandsTo, "to", "", "End date YYYY-MM-DD, inclusive")
	bandsCmd.Flags().IntVar(&bandsWindow, "window", 0, "Band window (default from config)")
	bandsCmd.Flags().Float64Var(&bandsMultiplier, "multiplier", -1, "Band width in standard deviations (default from config)")
	bandsCmd.Flags().IntVar(&bandsLast, "last", 10, "Number of latest band points to print (0 for all)")
	bandsCmd.Flags().BoolVar(&bandsJSON, "json", false, "Print the full analysis as JSON")
	bandsCmd.Flags().DurationVar(&bandsTimeout, "timeout", time.Minute, "Overall timeout")

	bandsCmd.MarkFlagsMutuallyExclusive("interval", "lookback", "from")
	bandsCmd.MarkFlagsMutuallyExclusive("interval", "lookback", "to")
	bandsCmd.MarkFlagsRequiredTogether("from", "to")
}

// rangeFromFlags picks the range mode from whichever flags were given.
func rangeFromFlags() collector.RangeSpec {
	switch {
	case bandsFrom != "" || bandsTo != "":
		return collector.RangeSpec{Mode: collector.ModeDateRange, From: bandsFrom, To: bandsTo}
	case bandsLookback != "":
		return collector.RangeSpec{Mode: collector.ModeLookback, Lookback: bandsLookback}
	default:
		return collector.RangeSpec{Mode: collector.ModeInterval, Interval: bandsInterval}
	}
}

func runBands(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	params := model.BandParams{Window: cfg.Bands.Window, Multiplier: cfg.Bands.Multiplier}
	if bandsWindow != 0 {
		params.Window = bandsWindow
	}
	if bandsMultiplier >= 0 {
		params.Multiplier = bandsMultiplier
	}

	ctx, cancel := context.WithTimeout(context.Background(), bandsTimeout)
	defer cancel()

	spec := rangeFromFlags()
	series, err := collector.NewCollector(newFetcher(cfg)).Fetch(ctx, bandsPair, spec)
	if err != nil {
		return err
	}

	a, err := strategy.Analyze(series, params)
	if err != nil {
		return fmt.Errorf("%s: %w", series.Pair, err)
	}

	out := cmd.OutOrStdout()
	if bandsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Pair     string              `json:"pair"`
			Interval int                 `json:"interval"`
			Range    collector.RangeSpec `json:"range"`
			*model.Analysis
		}{series.Pair, series.Interval, spec, a})
	}
	return printBands(out, series, a, bandsLast)
}

func printBands(out io.Writer, series *model.PriceSeries, a *model.Analysis, last int) error {
	fmt.Fprintf(out, "%s  interval=%dm  bars=%d  window=%d  k=%.2f\n\n",
		series.Pair, series.Interval, series.Len(), a.Params.Window, a.Params.Multiplier)

	rows := a.Classified
	if last > 0 && len(rows) > last {
		rows = rows[len(rows)-last:]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME (UTC)\tCLOSE\tLOWER\tMEAN\tUPPER\tSIGNAL")
	for _, p := range rows {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%s\n",
			fmtTime(p.Time), p.Close, *p.LowerBand, *p.MovingAverage, *p.UpperBand, p.Signal)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := a.Summary
	fmt.Fprintf(out, "\nclassified=%d  buy=%d  sell=%d  hold=%d\n", s.Classified, s.Buys, s.Sells, s.Holds)
	return nil
}
