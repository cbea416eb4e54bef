package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StatusProvider exposes the runner's current status.
type StatusProvider interface {
	Status() Status
}

// Reporter sends a daily summary of the current readings on a cron schedule.
type Reporter struct {
	cron     *cron.Cron
	status   StatusProvider
	dispatch *Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewReporter schedules the report with a six-field (seconds-first) cron
// expression evaluated in UTC.
func NewReporter(schedule string, status StatusProvider, dispatch *Dispatcher, logger *slog.Logger) (*Reporter, error) {
	r := &Reporter{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		status:   status,
		dispatch: dispatch,
		logger:   logger,
		now:      time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, r.send); err != nil {
		return nil, fmt.Errorf("register daily report %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.cron.Start()
	for _, e := range r.cron.Entries() {
		r.logger.Info("next daily report", "at", e.Next.Format(time.RFC3339))
	}
	<-ctx.Done()
	<-r.cron.Stop().Done()
}

func (r *Reporter) send() {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	r.dispatch.Deliver(ctx, r.Report())
}

// Report renders the daily summary alert.
func (r *Reporter) Report() AlertEvent {
	return AlertEvent{
		Severity: SeverityInfo,
		Category: CategoryLifecycle,
		Message:  formatDailyReport(r.status.Status(), r.now()),
	}
}
