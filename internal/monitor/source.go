package monitor

import (
	"context"
	"time"
)

// PoolSource fetches the current on-chain metrics for the tracked pool.
type PoolSource interface {
	// Name returns a short identifier used in logs and metrics (e.g., "subgraph").
	Name() string

	// FetchPoolSnapshot returns the latest price, day volume and TVL.
	FetchPoolSnapshot(ctx context.Context) (PoolSnapshot, error)
}

// GasSource fetches the current gas price and its trailing average.
type GasSource interface {
	Name() string
	FetchGasStatus(ctx context.Context) (GasStatus, error)
}

// GasLookup is the single side-effecting call the engine makes during evaluation.
type GasLookup func(ctx context.Context) (GasStatus, error)

// PositionRange is the fixed price range of the liquidity position.
type PositionRange struct {
	Lower float64 `json:"lower_price" yaml:"lower_price"`
	Upper float64 `json:"upper_price" yaml:"upper_price"`
}

// Contains reports whether price lies inside the range widened by tolerance
// on both sides.
func (r PositionRange) Contains(price, tolerance float64) bool {
	return r.Lower*(1-tolerance) <= price && price <= r.Upper*(1+tolerance)
}

// PoolSnapshot is one observation of the pool.
type PoolSnapshot struct {
	PoolID    string    `json:"pool_id"`
	Price     float64   `json:"price"`
	VolumeUSD float64   `json:"volume_usd"`
	TVLUSD    float64   `json:"tvl_usd"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GasClass classifies the current gas price against its trailing average.
type GasClass string

const (
	GasCheap     GasClass = "CHEAP"
	GasExpensive GasClass = "EXPENSIVE"
)

// GasStatus is the current gas price with its 3-day average.
type GasStatus struct {
	CurrentGwei float64  `json:"current_gwei"`
	AverageGwei float64  `json:"average_gwei"`
	Class       GasClass `json:"class"`
}

// NewGasStatus derives the classification from the two prices.
func NewGasStatus(current, average float64) GasStatus {
	class := GasExpensive
	if current < average {
		class = GasCheap
	}
	return GasStatus{CurrentGwei: current, AverageGwei: average, Class: class}
}

// EngineState carries the previous cycle's values. A nil field has not been
// observed yet; once set, a field is never cleared.
type EngineState struct {
	LastPrice  *float64 `json:"last_price"`
	LastVolume *float64 `json:"last_volume"`
	LastRatio  *float64 `json:"last_ratio"`
	LastTVL    *float64 `json:"last_tvl"`
}

// Clone returns a deep copy so readers never alias the runner's state.
func (s EngineState) Clone() EngineState {
	return EngineState{
		LastPrice:  clonePtr(s.LastPrice),
		LastVolume: clonePtr(s.LastVolume),
		LastRatio:  clonePtr(s.LastRatio),
		LastTVL:    clonePtr(s.LastTVL),
	}
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func set(dst **float64, v float64) {
	*dst = &v
}

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Category of an alert.
type Category string

const (
	CategoryApproachingBound Category = "APPROACHING_BOUND"
	CategoryOutOfRange       Category = "OUT_OF_RANGE"
	CategoryVolumeChange     Category = "VOLUME_CHANGE"
	CategoryRatioChange      Category = "RATIO_CHANGE"
	CategoryTVLChange        Category = "TVL_CHANGE"
	CategoryFavorableGas     Category = "FAVORABLE_GAS"
	CategoryError            Category = "ERROR"
	CategoryLifecycle        Category = "LIFECYCLE"
)

// AlertEvent is a rendered alert ready for delivery. It is never stored.
type AlertEvent struct {
	Severity Severity
	Category Category
	Message  string
}
