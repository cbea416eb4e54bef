package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

// LatestReader loads the last persisted reading for a pool.
type LatestReader interface {
	GetLatest(ctx context.Context, poolID string) (*monitor.Reading, error)
}

// Status serves the runner's latest readings and baselines as JSON.
// Until the first cycle completes it falls back to the reading stored by
// a previous run, if stored is non-nil. With neither it answers 503.
func Status(p monitor.StatusProvider, stored LatestReader, poolID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := p.Status()
		if st.Latest == nil && stored != nil {
			if reading, err := stored.GetLatest(r.Context(), poolID); err == nil {
				st.Latest = reading
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if st.Latest == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
