package monitor

import (
	"strings"
	"testing"
	"time"
)

func TestFormatNum(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0.00123, "0.0012"},
		{0.5, "0.5000"},
		{999.99, "999.9900"},
		{1000, "1,000.00"},
		{1234.56, "1,234.56"},
		{123456.78, "123,456.78"},
		{1000000, "1.00M"},
		{123456789, "123.46M"},
	}
	for _, tt := range tests {
		got := formatNum(tt.input)
		if got != tt.want {
			t.Errorf("formatNum(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "0"},
		{"100", "100"},
		{"1000", "1,000"},
		{"1234567", "1,234,567"},
		{"12345678.99", "12,345,678.99"},
		{"-1000", "-1,000"},
		{"-940000.00", "-940,000.00"},
		{"-100.25", "-100.25"},
	}
	for _, tt := range tests {
		got := addCommas(tt.input)
		if got != tt.want {
			t.Errorf("addCommas(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0.00"},
		{1200, "1,200.00"},
		{940000, "940,000.00"},
		{1234567.891, "1,234,567.89"},
	}
	for _, tt := range tests {
		if got := formatUSD(tt.input); got != tt.want {
			t.Errorf("formatUSD(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatFavorableGas(t *testing.T) {
	msg := formatFavorableGas(NewGasStatus(12, 18.456))
	for _, want := range []string{"Current Gas: 12 GWEI", "3-day Average: 18.5 GWEI", "rebalance"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFormatTVLChange(t *testing.T) {
	msg := formatTVLChange(-6, 940000, 1000000)
	for _, want := range []string{"Change: -6.00%", "Current TVL: $940,000.00", "Previous TVL: $1,000,000.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFormatStartup(t *testing.T) {
	msg := formatStartup(PositionRange{Lower: 0.83832102, Upper: 0.84252314}, 30*time.Second)
	for _, want := range []string{"Position Monitor Started", "0.838321 - 0.842523", "Check Interval: 30 seconds"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFormatMonitorErrorEscapes(t *testing.T) {
	msg := formatMonitorError("index out of range <3>")
	if strings.Contains(msg, "<3>") {
		t.Errorf("message %q is not HTML escaped", msg)
	}
}

func TestFormatStatus(t *testing.T) {
	st := Status{Range: PositionRange{Lower: 0.838, Upper: 0.8425}}
	if got := FormatStatus(st); !strings.Contains(got, "No readings yet.") {
		t.Errorf("empty status %q, want no readings line", got)
	}

	last := 0.837
	st.Latest = &Reading{
		Snapshot:   PoolSnapshot{Price: 0.837, VolumeUSD: 1_500_000, TVLUSD: 2500},
		InRange:    false,
		ObservedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	st.State.LastPrice = &last
	st.Cycles, st.FailedCycles = 10, 2
	st.LastError = "fetch <subgraph>"

	got := FormatStatus(st)
	for _, want := range []string{
		"Price: 0.837000 (❌ out of range)",
		"Day Volume: $1.50M",
		"TVL: $2,500.00",
		"Updated: 2024-05-01T08:00:00Z",
		"Last Alerted Price: 0.837000",
		"Cycles: 10 (failed: 2)",
		"Last Error: fetch &lt;subgraph&gt;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q missing %q", got, want)
		}
	}
}

func TestFormatDailyReport(t *testing.T) {
	got := formatDailyReport(Status{}, time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC))
	if !strings.Contains(got, "<b>LP POSITION DAILY REPORT - 2024-05-01</b>") {
		t.Errorf("report %q, want title with date", got)
	}
	if strings.ContainsRune(got, '\u2014') {
		t.Errorf("report %q contains an em dash", got)
	}
}
