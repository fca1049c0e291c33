package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetriesExhausted is returned when every attempt failed with a transport error.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError is returned for a 5xx reply once retries are used up.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Breaker BreakerConfig

	// Registry, when set, receives the client and its success/failure history.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for chain and price providers.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         DefaultBreakerConfig(name),
		Logger:          zerolog.Nop(),
	}
}

// Client is an HTTP doer with circuit breaking and exponential-backoff retries.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	cfg     ClientConfig
}

// NewClient creates a Client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig(cfg.Name)
	}

	c := &Client{
		name:    cfg.Name,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker[*http.Response](cfg.Breaker, cfg.Logger), //nolint:bodyclose // type parameter
		cfg:     cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the provider name the client was built with.
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req, retrying network errors and 5xx replies. 4xx replies are returned
// as-is. The caller closes the returned body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var resp *http.Response
	attempt := func() error {
		if resp != nil {
			drain(resp)
			resp = nil
		}

		r, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			return c.send(ctx, req)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case err != nil:
			resp = r
			return err
		}

		resp = r
		return nil
	}

	err := backoff.Retry(attempt, policy)
	if err == nil {
		c.record(nil)
		return resp, nil
	}

	if resp != nil {
		drain(resp)
	}

	var se *StatusError
	switch {
	case errors.Is(err, ErrCircuitOpen), errors.As(err, &se), ctx.Err() != nil:
	default:
		err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
	}

	c.record(err)
	return nil, fmt.Errorf("%s: %w", c.name, err)
}

func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rewind request body: %w", err))
		}
		clone.Body = body
	}

	r, err := c.http.Do(clone)
	if err != nil {
		return nil, err
	}

	if r.StatusCode >= http.StatusInternalServerError {
		return r, &StatusError{StatusCode: r.StatusCode}
	}

	return r, nil
}

func (c *Client) record(err error) {
	if c.cfg.Registry == nil {
		return
	}
	if err != nil {
		c.cfg.Registry.RecordFailure(c.name, err)
		return
	}
	c.cfg.Registry.RecordSuccess(c.name)
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10)) //nolint:errcheck // best effort
	_ = r.Body.Close()
}
