// Package dexscreener quotes token prices from the public DexScreener API.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the DexScreener API base URL.
	DefaultBaseURL = "https://api.dexscreener.com"

	// ProviderName identifies this provider in the resilience registry.
	ProviderName = "dexscreener"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the DexScreener client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient HTTPDoer
	Registry   *resilience.Registry
	Logger     zerolog.Logger
}

// Client is a DexScreener API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	log        zerolog.Logger
}

var _ chain.PriceSource = (*Client)(nil)

// NewClient creates a new DexScreener client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	DexID    string `json:"dexId"`
	PriceUSD string `json:"priceUsd"`
}

// FetchPriceUSD returns the USD price of mint from its first listed pair,
// which DexScreener orders by liquidity. A token with no pairs is priced at 0.
func (c *Client) FetchPriceUSD(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if len(body.Pairs) == 0 || body.Pairs[0].PriceUSD == "" {
		c.log.Debug().Str("mint", mint).Msg("no priced pairs")
		return 0, nil
	}

	price, err := strconv.ParseFloat(body.Pairs[0].PriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("parse priceUsd %q: %w", body.Pairs[0].PriceUSD, err)
	}
	if price < 0 {
		return 0, nil
	}

	c.log.Debug().Str("dex", body.Pairs[0].DexID).Float64("price_usd", price).Msg("price quoted")
	return price, nil
}
