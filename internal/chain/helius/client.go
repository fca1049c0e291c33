// Package helius fetches token holders through the Helius DAS getTokenAccounts RPC method.
package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/holdtrack/holdtrack/internal/chain"
	"github.com/holdtrack/holdtrack/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the Helius mainnet RPC endpoint.
	DefaultBaseURL = "https://mainnet.helius-rpc.com"

	// ProviderName identifies this provider in the resilience registry.
	ProviderName = "helius"

	// DefaultPageLimit is the maximum page size getTokenAccounts accepts.
	DefaultPageLimit = 1000

	// DefaultMaxPages caps pagination for tokens with very many holders.
	DefaultMaxPages = 1000

	requestID = "holdtrack"
)

var (
	// ErrRPC is returned when the RPC reply carries an error object.
	ErrRPC = errors.New("helius rpc error")

	// ErrPageCap is returned when pagination hits MaxPages before an empty page.
	ErrPageCap = errors.New("helius page cap reached")
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Helius client.
type ClientConfig struct {
	BaseURL string
	APIKey  string

	// HTTPClient defaults to a resilient client registered in Registry.
	HTTPClient HTTPDoer
	Registry   *resilience.Registry

	PageLimit int
	MaxPages  int

	// Decimals scales raw token amounts into whole tokens.
	Decimals int

	Logger zerolog.Logger
}

// Client is a Helius RPC client.
type Client struct {
	endpoint   string
	httpClient HTTPDoer
	pageLimit  int
	maxPages   int
	scale      float64
	log        zerolog.Logger
}

var _ chain.HolderSource = (*Client)(nil)

// NewClient creates a new Helius client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = 30 * time.Second
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	endpoint := baseURL + "/"
	if cfg.APIKey != "" {
		endpoint += "?api-key=" + cfg.APIKey
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		pageLimit:  pageLimit,
		maxPages:   maxPages,
		scale:      math.Pow10(cfg.Decimals),
		log:        cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Page           int            `json:"page"`
	Limit          int            `json:"limit"`
	DisplayOptions map[string]any `json:"displayOptions"`
	Mint           string         `json:"mint"`
}

// FetchHolders returns one Balance per owner of mint. Pages are requested until
// the first empty page. Any failed page fails the whole call, because a partial
// list would look like wallets that sold.
func (c *Client) FetchHolders(ctx context.Context, mint string) ([]chain.Balance, error) {
	totals := make(map[string]float64)
	order := make([]string, 0)

	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: %d pages", ErrPageCap, c.maxPages)
		}

		accounts, err := c.fetchPage(ctx, mint, page)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(accounts) == 0 {
			c.log.Debug().Int("pages", page-1).Int("owners", len(order)).Msg("token accounts exhausted")
			break
		}

		for _, acct := range accounts {
			owner := acct.Get("owner").String()
			if owner == "" {
				continue
			}
			if _, seen := totals[owner]; !seen {
				order = append(order, owner)
			}
			totals[owner] += acct.Get("amount").Float() / c.scale
		}
	}

	balances := make([]chain.Balance, 0, len(order))
	for _, owner := range order {
		balances = append(balances, chain.Balance{Owner: owner, Amount: totals[owner]})
	}
	return balances, nil
}

func (c *Client) fetchPage(ctx context.Context, mint string, page int) ([]gjson.Result, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  "getTokenAccounts",
		Params: rpcParams{
			Page:           page,
			Limit:          c.pageLimit,
			DisplayOptions: map[string]any{},
			Mint:           mint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("response is not valid JSON")
	}

	doc := gjson.ParseBytes(raw)
	if rpcErr := doc.Get("error"); rpcErr.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrRPC, rpcErr.Get("message").String())
	}

	return doc.Get("result.token_accounts").Array(), nil
}
