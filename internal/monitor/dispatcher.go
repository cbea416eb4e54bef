package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/web3-frozen/lp-range-monitor/internal/metrics"
)

const deliverTimeout = 10 * time.Second

// Sender delivers one rendered message to the alert channel.
type Sender interface {
	SendMessage(ctx context.Context, text string) error
}

// Deduper suppresses identical deliveries inside a time window.
type Deduper interface {
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string, ttl time.Duration)
}

// Dispatcher delivers alerts best-effort. Delivery failures are logged and
// counted; they never reach the caller.
type Dispatcher struct {
	sender   Sender
	logger   *slog.Logger
	dedup    Deduper
	dedupTTL time.Duration
}

func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger}
}

// WithDedup enables suppression of identical messages within ttl. A nil
// deduper or non-positive ttl leaves dedup off.
func (d *Dispatcher) WithDedup(dd Deduper, ttl time.Duration) *Dispatcher {
	if dd != nil && ttl > 0 {
		d.dedup = dd
		d.dedupTTL = ttl
	}
	return d
}

// Dispatch delivers every alert in order. A failure on one alert does not
// stop the following ones.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []AlertEvent) {
	for _, a := range alerts {
		d.Deliver(ctx, a)
	}
}

// Deliver sends a single alert and reports whether it was handed to the channel.
func (d *Dispatcher) Deliver(ctx context.Context, a AlertEvent) bool {
	category := string(a.Category)

	var key string
	if d.dedup != nil {
		key = dedupKey(a)
		if d.dedup.AlreadySent(ctx, key) {
			metrics.AlertsDeduplicatedTotal.WithLabelValues(category).Inc()
			d.logger.Info("alert suppressed by dedup", "category", category)
			return false
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := d.sender.SendMessage(sendCtx, a.Message); err != nil {
		derr := &DeliveryError{Category: a.Category, Err: err}
		metrics.AlertsFailedTotal.WithLabelValues(category).Inc()
		d.logger.Error("send alert failed", "severity", a.Severity, "category", category, "error", derr)
		return false
	}

	if d.dedup != nil {
		d.dedup.Record(ctx, key, d.dedupTTL)
	}
	metrics.AlertsSentTotal.WithLabelValues(category).Inc()
	d.logger.Info("alert sent", "severity", a.Severity, "category", category)
	return true
}

func dedupKey(a AlertEvent) string {
	sum := sha256.Sum256([]byte(a.Message))
	return "alert:" + string(a.Category) + ":" + hex.EncodeToString(sum[:8])
}
