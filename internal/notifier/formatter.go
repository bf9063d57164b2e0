package notifier

import (
	"fmt"
	"strings"
	"time"

	"BandWatch/internal/calculator"
	"BandWatch/internal/model"
	"BandWatch/internal/recorder"
)

const timeLayout = "2006-01-02 15:04"

func signalIcon(s model.Signal) string {
	switch s {
	case model.SignalBuy:
		return "🟢"
	case model.SignalSell:
		return "🔴"
	default:
		return "⚪"
	}
}

func fmtStat(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}

// FormatSignalAlert formats a buy or sell crossing into a Telegram message.
func FormatSignalAlert(pair string, p model.BandPoint, params model.BandParams) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s <b>%s %s</b> | %s UTC\n\n", signalIcon(p.Signal), pair, p.Signal, p.Time.UTC().Format(timeLayout)))
	b.WriteString(fmt.Sprintf("Close: %.4f\n", p.Close))
	b.WriteString(fmt.Sprintf("Upper: %s\n", fmtStat(p.UpperBand)))
	b.WriteString(fmt.Sprintf("Mean:  %s\n", fmtStat(p.MovingAverage)))
	b.WriteString(fmt.Sprintf("Lower: %s\n", fmtStat(p.LowerBand)))
	b.WriteString(fmt.Sprintf("\nBand: %d bars, %.2fσ", params.Window, params.Multiplier))

	switch p.Signal {
	case model.SignalBuy:
		b.WriteString("\nClose is below the lower band.")
	case model.SignalSell:
		b.WriteString("\nClose is above the upper band.")
	}
	return b.String()
}

// FormatSummary formats the signal counts and latest band state of an analysis.
func FormatSummary(pair string, a *model.Analysis) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %d bars, %.2fσ\n\n", pair, a.Params.Window, a.Params.Multiplier))

	s := a.Summary
	b.WriteString(fmt.Sprintf("Classified: %d\n", s.Classified))
	b.WriteString(fmt.Sprintf("Buy: %d | Sell: %d | Hold: %d\n", s.Buys, s.Sells, s.Holds))

	if last := s.Last; last != nil {
		b.WriteString(fmt.Sprintf("\nLatest %s: %s %s\n", last.Time.UTC().Format(timeLayout), signalIcon(last.Signal), last.Signal))
		b.WriteString(fmt.Sprintf("Close %.4f in [%s, %s]\n", last.Close, fmtStat(last.LowerBand), fmtStat(last.UpperBand)))
		if last.LowerBand != nil && last.UpperBand != nil {
			if pos, err := calculator.CalculatePosition(last.Close, *last.UpperBand, *last.LowerBand); err == nil {
				b.WriteString(fmt.Sprintf("Band position: %.0f%%\n", pos*100))
			}
		}
	}
	return b.String()
}

// FormatRecentSignals lists recorded events, newest first.
func FormatRecentSignals(pair string, events []recorder.SignalEvent) string {
	var b strings.Builder
	if pair == "" {
		b.WriteString("🗂 <b>Recent signals</b>\n\n")
	} else {
		b.WriteString(fmt.Sprintf("🗂 <b>Recent signals: %s</b>\n\n", pair))
	}
	if len(events) == 0 {
		b.WriteString("No signals recorded yet.")
		return b.String()
	}
	for _, e := range events {
		b.WriteString(fmt.Sprintf("%s %s %s @ %.4f (%s)\n",
			signalIcon(e.Signal), e.BarTime.UTC().Format(timeLayout), e.Pair, e.Close, e.Signal))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatWatchStatus lists watched pairs and when they were last checked.
func FormatWatchStatus(pairs []string, interval int, lastRun time.Time) string {
	var b strings.Builder
	b.WriteString("👀 <b>Watch list</b>\n\n")
	if len(pairs) == 0 {
		b.WriteString("No pairs configured.")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Pairs: %s\n", strings.Join(pairs, ", ")))
	b.WriteString(fmt.Sprintf("Interval: %d min\n", interval))
	if lastRun.IsZero() {
		b.WriteString("Last check: never")
	} else {
		b.WriteString(fmt.Sprintf("Last check: %s UTC", lastRun.UTC().Format(timeLayout)))
	}
	return b.String()
}

// FormatHelp lists the supported bot commands.
func FormatHelp() string {
	return "🤖 <b>BandWatch</b>\n\n" +
		"/signals PAIR - band summary for a pair\n" +
		"/watch - watch list and recent alerts\n" +
		"/help - this message"
}
