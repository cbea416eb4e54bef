package monitor

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// Messages use Telegram HTML parse mode.

func formatApproachLower(price, lower float64) string {
	return fmt.Sprintf("⚠️ <b>Price Approaching Lower Bound</b>\n"+
		"Current: %.6f\n"+
		"Lower Bound: %.6f\n"+
		"Consider preparing for rebalance", price, lower)
}

func formatApproachUpper(price, upper float64) string {
	return fmt.Sprintf("⚠️ <b>Price Approaching Upper Bound</b>\n"+
		"Current: %.6f\n"+
		"Upper Bound: %.6f\n"+
		"Consider preparing for rebalance", price, upper)
}

func formatBelowRange(price, lower float64) string {
	return fmt.Sprintf("🚨 <b>CRITICAL: Position Below Range</b>\n"+
		"Current Price: %.6f\n"+
		"Lower Bound: %.6f\n"+
		"Not earning fees! Action required.", price, lower)
}

func formatAboveRange(price, upper float64) string {
	return fmt.Sprintf("🚨 <b>CRITICAL: Position Above Range</b>\n"+
		"Current Price: %.6f\n"+
		"Upper Bound: %.6f\n"+
		"Not earning fees! Action required.", price, upper)
}

func formatVolumeChange(pct, current, previous float64) string {
	return fmt.Sprintf("📊 <b>Significant Volume Change</b>\n"+
		"Change: %.1f%%\n"+
		"Current Volume: $%s\n"+
		"Previous Volume: $%s", pct, formatUSD(current), formatUSD(previous))
}

func formatRatioChange(change, previous, current float64) string {
	return fmt.Sprintf("📈 <b>Significant Ratio Change</b>\n"+
		"Change: %.1f%%\n"+
		"Previous: %.6f\n"+
		"Current: %.6f", change*100, previous, current)
}

func formatFavorableGas(g GasStatus) string {
	return fmt.Sprintf("⛽ <b>Favorable Gas Conditions</b>\n"+
		"Current Gas: %s GWEI\n"+
		"3-day Average: %.1f GWEI\n"+
		"Good time to rebalance position",
		strconv.FormatFloat(g.CurrentGwei, 'f', -1, 64), g.AverageGwei)
}

func formatTVLChange(pct, current, previous float64) string {
	return fmt.Sprintf("💰 <b>Significant TVL Change</b>\n"+
		"Change: %.2f%%\n"+
		"Current TVL: $%s\n"+
		"Previous TVL: $%s", pct, formatUSD(current), formatUSD(previous))
}

func formatFetchError(err error) string {
	return "🔥 <b>Error</b>\nError checking position: " + html.EscapeString(err.Error())
}

func formatMonitorError(v any) string {
	return "🔥 Monitor error: " + html.EscapeString(fmt.Sprint(v))
}

func formatStartup(rng PositionRange, interval time.Duration) string {
	return fmt.Sprintf("🚀 <b>Position Monitor Started</b>\n"+
		"Monitoring Range: %.6f - %.6f\n"+
		"Check Interval: %d seconds", rng.Lower, rng.Upper, int(interval.Seconds()))
}

const shutdownMessage = "🛑 Monitor stopped by user"

// FormatStatus renders the current status for the /status command and
// the daily report body.
func FormatStatus(st Status) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Range: %.6f - %.6f\n", st.Range.Lower, st.Range.Upper))
	if st.Latest == nil {
		b.WriteString("No readings yet.\n")
	} else {
		r := st.Latest
		inRange := "✅ in range"
		if !r.InRange {
			inRange = "❌ out of range"
		}
		b.WriteString(fmt.Sprintf("Price: %.6f (%s)\n", r.Snapshot.Price, inRange))
		b.WriteString(fmt.Sprintf("Day Volume: $%s\n", formatNum(r.Snapshot.VolumeUSD)))
		b.WriteString(fmt.Sprintf("TVL: $%s\n", formatNum(r.Snapshot.TVLUSD)))
		b.WriteString(fmt.Sprintf("Updated: %s\n", r.ObservedAt.UTC().Format(time.RFC3339)))
	}
	if st.State.LastPrice != nil {
		b.WriteString(fmt.Sprintf("Last Alerted Price: %.6f\n", *st.State.LastPrice))
	}
	b.WriteString(fmt.Sprintf("Cycles: %d (failed: %d)", st.Cycles, st.FailedCycles))
	if st.LastError != "" {
		b.WriteString("\nLast Error: " + html.EscapeString(st.LastError))
	}
	return b.String()
}

func formatDailyReport(st Status, now time.Time) string {
	return fmt.Sprintf("📋 <b>LP POSITION DAILY REPORT - %s</b>\n\n%s",
		now.UTC().Format("2006-01-02"), FormatStatus(st))
}

// formatUSD renders v with two decimals and thousands separators.
func formatUSD(v float64) string {
	return addCommas(fmt.Sprintf("%.2f", v))
}

func formatNum(v float64) string {
	if v >= 1_000_000 {
		return fmt.Sprintf("%.2fM", v/1_000_000)
	}
	if v >= 1_000 {
		return formatUSD(v)
	}
	return fmt.Sprintf("%.4f", v)
}

func addCommas(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n := len(intPart)
	var result []byte
	for i := 0; i < n; i++ {
		if i > 0 && (n-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, intPart[i])
	}
	if hasFrac {
		return sign + string(result) + "." + frac
	}
	return sign + string(result)
}
