package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/web3-frozen/lp-range-monitor/internal/metrics"
)

// Thresholds are the fixed rule parameters. Each value is independent; none
// is derived from another.
type Thresholds struct {
	// Tolerance widens the range for membership and is the minimum relative
	// move before another out-of-range alert may fire.
	Tolerance float64 `yaml:"tolerance"`
	// ApproachBuffer is the relative distance from a bound that triggers an
	// approach warning while still in range.
	ApproachBuffer float64 `yaml:"approach_buffer"`
	// VolumeChangePct is compared strictly (>) against the absolute percent change.
	VolumeChangePct float64 `yaml:"volume_change_pct"`
	// RatioChange is a fraction, compared with >=.
	RatioChange float64 `yaml:"ratio_change"`
	// TVLChangePct is compared with >= against the absolute percent change.
	TVLChangePct float64 `yaml:"tvl_change_pct"`
}

// DefaultThresholds returns the production rule parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Tolerance:       0.0005,
		ApproachBuffer:  0.01,
		VolumeChangePct: 10,
		RatioChange:     0.003,
		TVLChangePct:    5,
	}
}

// Validate checks that every threshold is positive.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"tolerance":         t.Tolerance,
		"approach_buffer":   t.ApproachBuffer,
		"volume_change_pct": t.VolumeChangePct,
		"ratio_change":      t.RatioChange,
		"tvl_change_pct":    t.TVLChangePct,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold %s must be positive, got %v", name, v)
		}
	}
	return nil
}

// Engine applies the change-detection rules to one snapshot at a time.
// It holds no state of its own; the caller owns EngineState.
type Engine struct {
	th     Thresholds
	logger *slog.Logger
}

func NewEngine(th Thresholds, logger *slog.Logger) *Engine {
	return &Engine{th: th, logger: logger}
}

// Thresholds returns the rule parameters the engine was built with.
func (e *Engine) Thresholds() Thresholds { return e.th }

// InRange reports range membership with the engine's tolerance.
func (e *Engine) InRange(price float64, rng PositionRange) bool {
	return rng.Contains(price, e.th.Tolerance)
}

// Evaluate runs every rule against snap, updates state in place and returns
// the alerts to deliver, in order. gas may be nil, in which case the
// favorable-gas rule is skipped.
func (e *Engine) Evaluate(ctx context.Context, snap PoolSnapshot, rng PositionRange, gas GasLookup, state *EngineState) []AlertEvent {
	var alerts []AlertEvent
	price := snap.Price
	inRange := e.InRange(price, rng)

	if inRange {
		if a, ok := e.checkApproach(price, rng); ok {
			alerts = append(alerts, a)
		}
	}

	if a, ok := e.checkOutOfRange(price, rng, inRange, state); ok {
		alerts = append(alerts, a)
	}

	if a, ok := e.checkVolume(snap.VolumeUSD, state); ok {
		alerts = append(alerts, a)
	}

	if a, ok := e.checkRatio(price, state); ok {
		alerts = append(alerts, a)
	}

	if !inRange && gas != nil {
		if a, ok := e.checkGas(ctx, gas); ok {
			alerts = append(alerts, a)
		}
	}

	if a, ok := e.evaluateTVL(snap.TVLUSD, state); ok {
		alerts = append(alerts, a)
	}

	return alerts
}

func (e *Engine) checkApproach(price float64, rng PositionRange) (AlertEvent, bool) {
	// Lower is checked first so it wins when both buffers overlap.
	if price <= rng.Lower*(1+e.th.ApproachBuffer) {
		return AlertEvent{
			Severity: SeverityWarning,
			Category: CategoryApproachingBound,
			Message:  formatApproachLower(price, rng.Lower),
		}, true
	}
	if price >= rng.Upper*(1-e.th.ApproachBuffer) {
		return AlertEvent{
			Severity: SeverityWarning,
			Category: CategoryApproachingBound,
			Message:  formatApproachUpper(price, rng.Upper),
		}, true
	}
	return AlertEvent{}, false
}

// checkOutOfRange only moves LastPrice when it alerts; the other baselines
// move every cycle.
func (e *Engine) checkOutOfRange(price float64, rng PositionRange, inRange bool, state *EngineState) (AlertEvent, bool) {
	if state.LastPrice != nil {
		last := *state.LastPrice
		if math.Abs(price-last)/last < e.th.Tolerance {
			return AlertEvent{}, false
		}
	}
	if inRange {
		return AlertEvent{}, false
	}

	var a AlertEvent
	if price < rng.Lower {
		a = AlertEvent{Severity: SeverityCritical, Category: CategoryOutOfRange, Message: formatBelowRange(price, rng.Lower)}
	} else {
		a = AlertEvent{Severity: SeverityCritical, Category: CategoryOutOfRange, Message: formatAboveRange(price, rng.Upper)}
	}

	e.logger.Info("price out of range", "last_alerted_price", ptrValue(state.LastPrice), "price", price)
	set(&state.LastPrice, price)
	return a, true
}

func (e *Engine) checkVolume(current float64, state *EngineState) (AlertEvent, bool) {
	defer set(&state.LastVolume, current)

	if state.LastVolume == nil {
		return AlertEvent{}, false
	}
	last := *state.LastVolume
	pct, ok := pctChange(current, last)
	if !ok {
		return AlertEvent{}, false
	}
	e.logger.Debug("volume check", "current_usd", current, "previous_usd", last, "change_pct", pct)
	if math.Abs(pct) <= e.th.VolumeChangePct {
		return AlertEvent{}, false
	}
	return AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryVolumeChange,
		Message:  formatVolumeChange(pct, current, last),
	}, true
}

func (e *Engine) checkRatio(price float64, state *EngineState) (AlertEvent, bool) {
	defer set(&state.LastRatio, price)

	if state.LastRatio == nil {
		return AlertEvent{}, false
	}
	last := *state.LastRatio
	if last == 0 {
		return AlertEvent{}, false
	}
	change := math.Abs(price-last) / last
	if change < e.th.RatioChange {
		return AlertEvent{}, false
	}
	e.logger.Info("significant ratio change", "previous", last, "current", price)
	return AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryRatioChange,
		Message:  formatRatioChange(change, last, price),
	}, true
}

func (e *Engine) checkGas(ctx context.Context, gas GasLookup) (AlertEvent, bool) {
	status, err := gas(ctx)
	if err != nil {
		e.logger.Warn("gas lookup failed", "error", err)
		return AlertEvent{}, false
	}
	metrics.GasPriceGwei.WithLabelValues("current").Set(status.CurrentGwei)
	metrics.GasPriceGwei.WithLabelValues("average_3d").Set(status.AverageGwei)

	if status.Class != GasCheap {
		return AlertEvent{}, false
	}
	return AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryFavorableGas,
		Message:  formatFavorableGas(status),
	}, true
}

// evaluateTVL is a separate pass over the same snapshot.
func (e *Engine) evaluateTVL(current float64, state *EngineState) (AlertEvent, bool) {
	defer set(&state.LastTVL, current)

	if state.LastTVL == nil {
		return AlertEvent{}, false
	}
	last := *state.LastTVL
	pct, ok := pctChange(current, last)
	if !ok || math.Abs(pct) < e.th.TVLChangePct {
		return AlertEvent{}, false
	}
	return AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryTVLChange,
		Message:  formatTVLChange(pct, current, last),
	}, true
}

// FetchFailed renders the single ERROR alert for a cycle whose snapshot
// could not be fetched.
func FetchFailed(err error) AlertEvent {
	return AlertEvent{
		Severity: SeverityCritical,
		Category: CategoryError,
		Message:  formatFetchError(err),
	}
}

// pctChange returns the percent change from last to current. A zero
// baseline has no defined change.
func pctChange(current, last float64) (float64, bool) {
	if last == 0 {
		return 0, false
	}
	return (current - last) / last * 100, true
}

func ptrValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
