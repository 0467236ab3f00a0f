package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/selivandex/crypto-index/internal/adapters/config"
)

// Client implements Provider using the CoinGecko API. One instance is
// shared by every pipeline stage; the mutex serializes call pacing.
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	callDelay time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient creates new CoinGecko provider client
func NewClient(cfg *config.ProviderConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		callDelay: cfg.CallDelay,
	}
}

func (c *Client) GetName() string {
	return "CoinGecko"
}

// FetchMarketSnapshot returns one page of the market snapshot
func (c *Client) FetchMarketSnapshot(ctx context.Context, page, pageSize int) ([]SnapshotEntry, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("price_change_percentage", "1h,24h,7d,14d,30d,200d,1y")

	var entries []SnapshotEntry
	if err := c.get(ctx, "/coins/markets", params, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// rawSeries matches the market_chart wire format: arrays of [ms, value]
type rawSeries struct {
	Prices     [][2]float64 `json:"prices"`
	MarketCaps [][2]float64 `json:"market_caps"`
	TotalVols  [][2]float64 `json:"total_volumes"`
}

// FetchHistoricalSeries returns up to `days` of history for one asset
func (c *Client) FetchHistoricalSeries(ctx context.Context, externalID string, days int) (*HistoricalSeries, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))

	var raw rawSeries
	path := fmt.Sprintf("/coins/%s/market_chart", url.PathEscape(externalID))
	if err := c.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	return &HistoricalSeries{
		Prices:     toPoints(raw.Prices),
		MarketCaps: toPoints(raw.MarketCaps),
		Volumes:    toPoints(raw.TotalVols),
	}, nil
}

// FetchAssetMetadata returns category/description enrichment for one asset
func (c *Client) FetchAssetMetadata(ctx context.Context, externalID string) (*AssetMetadata, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "false")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	var raw struct {
		Categories  []string `json:"categories"`
		Description struct {
			EN string `json:"en"`
		} `json:"description"`
		Links struct {
			Homepage []string `json:"homepage"`
		} `json:"links"`
	}

	path := fmt.Sprintf("/coins/%s", url.PathEscape(externalID))
	if err := c.get(ctx, path, params, &raw); err != nil {
		return nil, err
	}

	meta := &AssetMetadata{
		Categories:  raw.Categories,
		Description: raw.Description.EN,
	}
	if len(raw.Links.Homepage) > 0 {
		meta.Homepage = raw.Links.Homepage[0]
	}

	return meta, nil
}

// get performs one paced GET request and decodes the JSON body into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.pace(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// pace enforces the fixed inter-call delay. Pacing is a design parameter to
// stay under the provider's call-rate ceiling, not a correctness requirement.
// The mutex is held across the wait so concurrent stages share one delay
// budget instead of racing past it.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callDelay > 0 && !c.lastCall.IsZero() {
		wait := c.callDelay - time.Since(c.lastCall)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	c.lastCall = time.Now()
	return nil
}

func toPoints(raw [][2]float64) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(raw))
	for _, pair := range raw {
		points = append(points, SeriesPoint{
			Timestamp: time.UnixMilli(int64(pair[0])).UTC(),
			Value:     pair[1],
		})
	}
	return points
}
