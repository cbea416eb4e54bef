package sources

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

const (
	oracleOK = `{"status":"1","message":"OK","result":{"LastBlock":"19000000","SafeGasPrice":"12","ProposeGasPrice":"13","FastGasPrice":"15"}}`
	dailyOK  = `{"status":"1","message":"OK","result":[
		{"UTCDate":"2024-04-28","SafeGasPrice":"20"},
		{"UTCDate":"2024-04-29","SafeGasPrice":"15.5"},
		{"UTCDate":"2024-04-30","SafeGasPrice":"18.5"}]}`
)

func newTestEtherscan(t *testing.T, responses map[string]string) (*Etherscan, *[]url.Values) {
	t.Helper()
	var seen []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		seen = append(seen, q)
		body, ok := responses[q.Get("action")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return &Etherscan{
		client:  srv.Client(),
		baseURL: srv.URL,
		apiKey:  "KEY",
		now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}, &seen
}

func TestEtherscanFetchGasStatus(t *testing.T) {
	e, seen := newTestEtherscan(t, map[string]string{
		"gasoracle":      oracleOK,
		"dailygasoracle": dailyOK,
	})

	status, err := e.FetchGasStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchGasStatus: %v", err)
	}
	if status.CurrentGwei != 12 {
		t.Errorf("CurrentGwei = %v, want 12", status.CurrentGwei)
	}
	if math.Abs(status.AverageGwei-18) > 1e-9 {
		t.Errorf("AverageGwei = %v, want 18", status.AverageGwei)
	}
	if status.Class != monitor.GasCheap {
		t.Errorf("Class = %s, want CHEAP", status.Class)
	}

	if len(*seen) != 2 {
		t.Fatalf("requests = %d, want 2", len(*seen))
	}
	daily := (*seen)[1]
	if daily.Get("startdate") != "2024-04-28" || daily.Get("enddate") != "2024-05-01" {
		t.Errorf("date window = %s..%s", daily.Get("startdate"), daily.Get("enddate"))
	}
	for _, q := range *seen {
		if q.Get("apikey") != "KEY" {
			t.Errorf("apikey = %q, want KEY", q.Get("apikey"))
		}
	}
}

func TestEtherscanExpensive(t *testing.T) {
	e, _ := newTestEtherscan(t, map[string]string{
		"gasoracle":      `{"status":"1","message":"OK","result":{"SafeGasPrice":"30"}}`,
		"dailygasoracle": dailyOK,
	})
	status, err := e.FetchGasStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchGasStatus: %v", err)
	}
	if status.Class != monitor.GasExpensive {
		t.Errorf("Class = %s, want EXPENSIVE", status.Class)
	}
}

func TestEtherscanErrors(t *testing.T) {
	tests := []struct {
		name      string
		responses map[string]string
		want      error
	}{
		{
			name: "rate limited",
			responses: map[string]string{
				"gasoracle": `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`,
			},
			want: monitor.ErrNetwork,
		},
		{
			name:      "http error",
			responses: map[string]string{},
			want:      monitor.ErrNetwork,
		},
		{
			name: "empty daily list",
			responses: map[string]string{
				"gasoracle":      oracleOK,
				"dailygasoracle": `{"status":"1","message":"OK","result":[]}`,
			},
			want: monitor.ErrSchema,
		},
		{
			name: "zero average",
			responses: map[string]string{
				"gasoracle":      oracleOK,
				"dailygasoracle": `{"status":"1","message":"OK","result":[{"SafeGasPrice":"0"}]}`,
			},
			want: monitor.ErrSchema,
		},
		{
			name: "bad current price",
			responses: map[string]string{
				"gasoracle": `{"status":"1","message":"OK","result":{"SafeGasPrice":"n/a"}}`,
			},
			want: monitor.ErrSchema,
		},
		{
			name: "daily result is a string",
			responses: map[string]string{
				"gasoracle":      oracleOK,
				"dailygasoracle": `{"status":"1","message":"OK","result":"unexpected"}`,
			},
			want: monitor.ErrSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEtherscan(t, tt.responses)
			_, err := e.FetchGasStatus(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var fe *monitor.FetchError
			if !errors.As(err, &fe) || fe.Source != "etherscan" {
				t.Errorf("error %v is not an etherscan FetchError", err)
			}
		})
	}
}

func TestParseGwei(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"12", 12, false},
		{"0.85", 0.85, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseGwei(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseGwei(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseGwei(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
