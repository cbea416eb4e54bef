package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

type fakeStatus struct{ st monitor.Status }

func (f fakeStatus) Status() monitor.Status { return f.st }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestStatusHandlerNoData(t *testing.T) {
	h := Status(fakeStatus{st: monitor.Status{Range: monitor.PositionRange{Lower: 0.838, Upper: 0.8425}}}, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var got monitor.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Range.Lower != 0.838 {
		t.Errorf("Range.Lower = %v, want 0.838", got.Range.Lower)
	}
}

func TestStatusHandlerWithReading(t *testing.T) {
	price := 0.84
	st := monitor.Status{
		Range: monitor.PositionRange{Lower: 0.838, Upper: 0.8425},
		Latest: &monitor.Reading{
			Snapshot:   monitor.PoolSnapshot{Price: 0.84, VolumeUSD: 1200, TVLUSD: 1_000_000},
			InRange:    true,
			ObservedAt: time.Now(),
		},
		State:  monitor.EngineState{LastRatio: &price},
		Cycles: 3,
	}
	h := Status(fakeStatus{st: st}, fakeLatest{err: errors.New("must not be called")}, "0xpool")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	state := raw["state"].(map[string]any)
	if state["last_price"] != nil {
		t.Errorf("last_price = %v, want null", state["last_price"])
	}
	if state["last_ratio"] != 0.84 {
		t.Errorf("last_ratio = %v, want 0.84", state["last_ratio"])
	}
}

type fakeLatest struct {
	reading *monitor.Reading
	err     error
}

func (f fakeLatest) GetLatest(_ context.Context, poolID string) (*monitor.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.reading == nil || f.reading.Snapshot.PoolID != poolID {
		return nil, errors.New("not found")
	}
	return f.reading, nil
}

func TestStatusHandlerStoredFallback(t *testing.T) {
	stored := &monitor.Reading{
		Snapshot: monitor.PoolSnapshot{PoolID: "0xpool", Price: 0.839, TVLUSD: 2_000_000},
		InRange:  true,
	}
	tests := []struct {
		name      string
		reader    LatestReader
		wantCode  int
		wantPrice float64
	}{
		{"stored reading", fakeLatest{reading: stored}, http.StatusOK, 0.839},
		{"nothing stored", fakeLatest{}, http.StatusServiceUnavailable, 0},
		{"store down", fakeLatest{err: errors.New("connection refused")}, http.StatusServiceUnavailable, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Status(fakeStatus{}, tt.reader, "0xpool")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var got monitor.Status
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantPrice == 0 {
				if got.Latest != nil {
					t.Errorf("Latest = %+v, want nil", got.Latest)
				}
				return
			}
			if got.Latest == nil || got.Latest.Snapshot.Price != tt.wantPrice {
				t.Errorf("Latest = %+v, want price %v", got.Latest, tt.wantPrice)
			}
		})
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		deps []Pinger
		want int
	}{
		{"no deps", nil, http.StatusOK},
		{"nil dep skipped", []Pinger{nil}, http.StatusOK},
		{"healthy", []Pinger{fakePinger{}}, http.StatusOK},
		{"one failing", []Pinger{fakePinger{}, fakePinger{err: errors.New("down")}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Ready(tt.deps...).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
