package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

const (
	DefaultEtherscanAPI = "https://api.etherscan.io/api"
	gasAverageDays      = 3
)

// Etherscan reads the current safe gas price and its 3-day average.
type Etherscan struct {
	client  *http.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func NewEtherscan(baseURL, apiKey string) *Etherscan {
	return &Etherscan{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		now:     time.Now,
	}
}

func (e *Etherscan) Name() string { return "etherscan" }

// etherscanResponse carries Result raw: on failure Etherscan returns a
// string there instead of an object or array.
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type gasOracle struct {
	SafeGasPrice string `json:"SafeGasPrice"`
}

func (e *Etherscan) FetchGasStatus(ctx context.Context) (monitor.GasStatus, error) {
	current, err := e.currentGas(ctx)
	if err != nil {
		return monitor.GasStatus{}, &monitor.FetchError{Source: e.Name(), Err: err}
	}
	avg, err := e.averageGas(ctx)
	if err != nil {
		return monitor.GasStatus{}, &monitor.FetchError{Source: e.Name(), Err: err}
	}
	return monitor.NewGasStatus(current, avg), nil
}

func (e *Etherscan) currentGas(ctx context.Context) (float64, error) {
	raw, err := e.get(ctx, url.Values{
		"module": {"gastracker"},
		"action": {"gasoracle"},
	})
	if err != nil {
		return 0, err
	}
	var oracle gasOracle
	if err := json.Unmarshal(raw, &oracle); err != nil {
		return 0, fmt.Errorf("%w: decode gas oracle: %v", monitor.ErrSchema, err)
	}
	return parseGwei(oracle.SafeGasPrice)
}

func (e *Etherscan) averageGas(ctx context.Context) (float64, error) {
	now := e.now().UTC()
	raw, err := e.get(ctx, url.Values{
		"module":    {"stats"},
		"action":    {"dailygasoracle"},
		"startdate": {now.AddDate(0, 0, -gasAverageDays).Format("2006-01-02")},
		"enddate":   {now.Format("2006-01-02")},
	})
	if err != nil {
		return 0, err
	}
	var days []gasOracle
	if err := json.Unmarshal(raw, &days); err != nil {
		return 0, fmt.Errorf("%w: decode daily gas oracle: %v", monitor.ErrSchema, err)
	}
	if len(days) == 0 {
		return 0, fmt.Errorf("%w: no daily gas data for the last %d days", monitor.ErrSchema, gasAverageDays)
	}

	sum := decimal.Zero
	for _, d := range days {
		v, err := decimal.NewFromString(d.SafeGasPrice)
		if err != nil {
			return 0, fmt.Errorf("%w: parse daily SafeGasPrice %q: %v", monitor.ErrSchema, d.SafeGasPrice, err)
		}
		sum = sum.Add(v)
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(days)))).Float64()
	if avg <= 0 {
		return 0, fmt.Errorf("%w: 3-day average gas must be positive, got %v", monitor.ErrSchema, avg)
	}
	return avg, nil
}

func (e *Etherscan) get(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if e.apiKey != "" {
		params.Set("apikey", e.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: etherscan %s: %v", monitor.ErrNetwork, params.Get("action"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: etherscan %s status: %d", monitor.ErrNetwork, params.Get("action"), resp.StatusCode)
	}

	var out etherscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode etherscan %s: %v", monitor.ErrSchema, params.Get("action"), err)
	}
	if out.Status != "1" {
		// Rate limits and bad keys come back as status "0" with a string result.
		var reason string
		if err := json.Unmarshal(out.Result, &reason); err != nil || reason == "" {
			reason = out.Message
		}
		return nil, fmt.Errorf("%w: etherscan %s: %s", monitor.ErrNetwork, params.Get("action"), reason)
	}
	return out.Result, nil
}

func parseGwei(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: parse SafeGasPrice %q: %v", monitor.ErrSchema, s, err)
	}
	f, _ := d.Float64()
	if f <= 0 {
		return 0, fmt.Errorf("%w: SafeGasPrice must be positive, got %q", monitor.ErrSchema, s)
	}
	return f, nil
}
