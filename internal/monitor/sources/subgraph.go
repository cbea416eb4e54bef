package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
)

const (
	DefaultGraphGateway = "https://gateway.thegraph.com/api"
	// DefaultSubgraphID is the Uniswap v3 mainnet subgraph.
	DefaultSubgraphID = "5zvR82QoaXYFyDEKLZ9t6v9adgnptxYpKpSbxtgVENFV"
)

const poolQuery = `query Pool($id: ID!) {
  pool(id: $id) {
    token0Price
    totalValueLockedUSD
    poolDayData(first: 2, orderBy: date, orderDirection: desc) {
      volumeUSD
    }
  }
}`

// NormalizePoolID validates a pool address and returns it lower-cased, the
// form subgraph entity IDs use.
func NormalizePoolID(id string) (string, error) {
	if !common.IsHexAddress(id) {
		return "", fmt.Errorf("invalid pool address %q", id)
	}
	return strings.ToLower(common.HexToAddress(id).Hex()), nil
}

// Subgraph reads pool metrics from a Uniswap v3 subgraph through The Graph gateway.
type Subgraph struct {
	client   *http.Client
	endpoint string
	poolID   string
}

// NewSubgraph builds the source. poolID must already be normalised.
func NewSubgraph(gateway, apiKey, subgraphID, poolID string) *Subgraph {
	return &Subgraph{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: fmt.Sprintf("%s/%s/subgraphs/id/%s", strings.TrimRight(gateway, "/"), apiKey, subgraphID),
		poolID:   poolID,
	}
}

func (s *Subgraph) Name() string { return "subgraph" }

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type poolResponse struct {
	Data struct {
		Pool *struct {
			Token0Price         string `json:"token0Price"`
			TotalValueLockedUSD string `json:"totalValueLockedUSD"`
			PoolDayData         []struct {
				VolumeUSD string `json:"volumeUSD"`
			} `json:"poolDayData"`
		} `json:"pool"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (s *Subgraph) FetchPoolSnapshot(ctx context.Context) (monitor.PoolSnapshot, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return monitor.PoolSnapshot{}, &monitor.FetchError{Source: s.Name(), Err: err}
	}
	return snap, nil
}

func (s *Subgraph) fetch(ctx context.Context) (monitor.PoolSnapshot, error) {
	body, err := s.graphql(ctx, graphqlRequest{
		Query:     poolQuery,
		Variables: map[string]any{"id": s.poolID},
	})
	if err != nil {
		return monitor.PoolSnapshot{}, err
	}

	var result poolResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: unmarshal pool: %v", monitor.ErrSchema, err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Message
		}
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: graphql: %s", monitor.ErrSchema, strings.Join(msgs, "; "))
	}
	pool := result.Data.Pool
	if pool == nil {
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: pool %s not found", monitor.ErrSchema, s.poolID)
	}
	if len(pool.PoolDayData) == 0 {
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: no day data for pool %s", monitor.ErrSchema, s.poolID)
	}

	price, err := parseBigDecimal("token0Price", pool.Token0Price)
	if err != nil {
		return monitor.PoolSnapshot{}, err
	}
	if price <= 0 {
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: token0Price must be positive, got %v", monitor.ErrSchema, price)
	}
	tvl, err := parseBigDecimal("totalValueLockedUSD", pool.TotalValueLockedUSD)
	if err != nil {
		return monitor.PoolSnapshot{}, err
	}
	volume, err := parseBigDecimal("volumeUSD", pool.PoolDayData[0].VolumeUSD)
	if err != nil {
		return monitor.PoolSnapshot{}, err
	}
	if tvl < 0 || volume < 0 {
		return monitor.PoolSnapshot{}, fmt.Errorf("%w: negative volume or TVL", monitor.ErrSchema)
	}

	return monitor.PoolSnapshot{
		PoolID:    s.poolID,
		Price:     price,
		VolumeUSD: volume,
		TVLUSD:    tvl,
		FetchedAt: time.Now(),
	}, nil
}

func (s *Subgraph) graphql(ctx context.Context, q graphqlRequest) ([]byte, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: graphql request: %v", monitor.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: graphql request failed: %d", monitor.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read graphql response: %v", monitor.ErrNetwork, err)
	}
	return body, nil
}

// parseBigDecimal converts a subgraph BigDecimal string to float64.
func parseBigDecimal(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s %q: %v", monitor.ErrSchema, field, s, err)
	}
	f, _ := d.Float64()
	return f, nil
}
