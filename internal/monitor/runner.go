package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/web3-frozen/lp-range-monitor/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Reading is the most recent successful observation.
type Reading struct {
	Snapshot   PoolSnapshot `json:"snapshot"`
	InRange    bool         `json:"in_range"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Status is a read-only copy of the runner's view, safe to hand to other
// goroutines.
type Status struct {
	Range        PositionRange `json:"range"`
	Latest       *Reading      `json:"latest,omitempty"`
	State        EngineState   `json:"state"`
	Cycles       int           `json:"cycles"`
	FailedCycles int           `json:"failed_cycles"`
	LastError    string        `json:"last_error,omitempty"`
}

// SnapshotRecorder persists the latest reading. Only the newest row is kept.
type SnapshotRecorder interface {
	SaveLatest(ctx context.Context, r Reading) error
}

// RunnerConfig holds the loop parameters.
type RunnerConfig struct {
	Range        PositionRange
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// Runner drives the poll loop. Ticks run sequentially on the goroutine that
// calls Run; EngineState is only touched there.
type Runner struct {
	cfg      RunnerConfig
	engine   *Engine
	pool     PoolSource
	gas      GasSource
	dispatch *Dispatcher
	recorder SnapshotRecorder
	logger   *slog.Logger

	state EngineState

	mu     sync.RWMutex
	status Status
}

func NewRunner(cfg RunnerConfig, engine *Engine, pool PoolSource, dispatch *Dispatcher, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		engine:   engine,
		pool:     pool,
		dispatch: dispatch,
		logger:   logger,
		status:   Status{Range: cfg.Range},
	}
}

// WithGas sets the gas source used while the position is out of range.
func (r *Runner) WithGas(gas GasSource) *Runner {
	r.gas = gas
	return r
}

// WithRecorder sets an optional latest-snapshot store.
func (r *Runner) WithRecorder(rec SnapshotRecorder) *Runner {
	r.recorder = rec
	return r
}

// Status returns a copy of the latest status.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.status
	st.State = st.State.Clone()
	if st.Latest != nil {
		latest := *st.Latest
		st.Latest = &latest
	}
	return st
}

// Run sends the startup notice, then ticks every PollInterval until ctx is
// cancelled, at which point it sends the shutdown notice and returns.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("starting continuous monitoring",
		"lower", r.cfg.Range.Lower, "upper", r.cfg.Range.Upper, "interval", r.cfg.PollInterval.String())
	r.dispatch.Deliver(ctx, AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryLifecycle,
		Message:  formatStartup(r.cfg.Range, r.cfg.PollInterval),
	})

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		r.Tick(ctx)

		timer.Reset(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	r.dispatch.Deliver(ctx, AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryLifecycle,
		Message:  shutdownMessage,
	})
	r.logger.Info(shutdownMessage)
}

// Tick runs one full cycle: fetch, evaluate, deliver. It never panics.
// Once the snapshot is in hand the cycle completes even if ctx is
// cancelled; deliveries are still bounded by the dispatcher's timeout.
func (r *Runner) Tick(ctx context.Context) {
	cycleCtx := context.WithoutCancel(ctx)
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("monitor error", "panic", v)
			r.markFailed(fmt.Sprint(v))
			r.dispatch.Deliver(cycleCtx, AlertEvent{
				Severity: SeverityCritical,
				Category: CategoryError,
				Message:  formatMonitorError(v),
			})
		}
	}()

	snap, err := r.fetchSnapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Info("fetch interrupted by shutdown", "error", err)
			return
		}
		r.logger.Error("error checking position", "source", r.pool.Name(), "error", err)
		r.markFailed(err.Error())
		r.dispatch.Deliver(ctx, FetchFailed(err))
		return
	}

	inRange := r.engine.InRange(snap.Price, r.cfg.Range)
	r.logger.Info("pool readings",
		"price", snap.Price,
		"volume_usd", snap.VolumeUSD,
		"tvl_usd", snap.TVLUSD,
		"in_range", inRange,
	)
	observe(snap, inRange)

	alerts := r.engine.Evaluate(cycleCtx, snap, r.cfg.Range, r.gasLookup(), &r.state)
	r.dispatch.Dispatch(cycleCtx, alerts)

	reading := Reading{Snapshot: snap, InRange: inRange, ObservedAt: time.Now()}
	if r.recorder != nil {
		saveCtx, cancel := context.WithTimeout(cycleCtx, r.cfg.FetchTimeout)
		err := r.recorder.SaveLatest(saveCtx, reading)
		cancel()
		if err != nil {
			r.logger.Warn("save latest snapshot failed", "error", err)
		}
	}

	r.mu.Lock()
	r.status.Latest = &reading
	r.status.State = r.state.Clone()
	r.status.Cycles++
	r.status.LastError = ""
	r.mu.Unlock()
}

func (r *Runner) fetchSnapshot(ctx context.Context) (PoolSnapshot, error) {
	name := r.pool.Name()
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := r.pool.FetchPoolSnapshot(fetchCtx)
	metrics.PollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues(name, "error").Inc()
		return PoolSnapshot{}, err
	}
	metrics.PollTotal.WithLabelValues(name, "ok").Inc()
	metrics.PollLastSuccess.WithLabelValues(name).SetToCurrentTime()
	return snap, nil
}

func (r *Runner) gasLookup() GasLookup {
	if r.gas == nil {
		return nil
	}
	return func(ctx context.Context) (GasStatus, error) {
		name := r.gas.Name()
		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()

		start := time.Now()
		status, err := r.gas.FetchGasStatus(fetchCtx)
		metrics.PollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PollTotal.WithLabelValues(name, "error").Inc()
			return GasStatus{}, err
		}
		metrics.PollTotal.WithLabelValues(name, "ok").Inc()
		metrics.PollLastSuccess.WithLabelValues(name).SetToCurrentTime()
		return status, nil
	}
}

func (r *Runner) markFailed(msg string) {
	r.mu.Lock()
	r.status.Cycles++
	r.status.FailedCycles++
	r.status.LastError = msg
	r.mu.Unlock()
}

func observe(snap PoolSnapshot, inRange bool) {
	metrics.PoolMetric.WithLabelValues("price").Set(snap.Price)
	metrics.PoolMetric.WithLabelValues("volume_usd").Set(snap.VolumeUSD)
	metrics.PoolMetric.WithLabelValues("tvl_usd").Set(snap.TVLUSD)
	v := 0.0
	if inRange {
		v = 1
	}
	metrics.PoolInRange.Set(v)
}
