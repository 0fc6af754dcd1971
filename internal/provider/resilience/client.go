// Package resilience wraps outbound HTTP calls to external providers with
// a circuit breaker, bounded retries, and per-request timeouts, and tracks
// provider health for the ops surface.
package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the provider's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds configuration for the resilient HTTP client.
type Config struct {
	// Name identifies the provider for the circuit breaker and registry.
	Name string

	// Timeout bounds each individual HTTP attempt (default: 10s). The
	// request context additionally cancels the whole operation, retries
	// included.
	Timeout time.Duration

	// MaxRetries bounds retry attempts on transient failures (default: 3).
	MaxRetries uint64

	// InitialBackoff is the first retry delay (default: 100ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay (default: 5s).
	MaxBackoff time.Duration

	// BreakerTimeout is how long the circuit stays open before probing
	// half-open (default: 60s).
	BreakerTimeout time.Duration

	// ReadyToTrip decides when the circuit opens. Defaults to tripping at
	// a 50% failure rate once at least 5 requests have been seen.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// Registry receives success/failure observations (optional).
	Registry *Registry
}

// DefaultConfig returns sensible defaults for a provider client.
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		Timeout:        10 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BreakerTimeout: 60 * time.Second,
	}
}

// Client is an HTTP client that retries transient failures with
// exponential backoff and fails fast while the provider's circuit is open.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	registry   *Registry
	config     Config
}

// NewClient creates a resilient HTTP client for one provider.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 60 * time.Second
	}

	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.5
		}
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: readyToTrip,
	})

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		registry:   cfg.Registry,
		config:     cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Do executes a request. Transient failures (network errors, 5xx) are
// retried with exponential backoff until MaxRetries; an open circuit
// returns ErrCircuitOpen immediately. Canceling the request context stops
// the whole operation, which is the cancellation hook for slow providers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialBackoff
	bo.MaxInterval = c.config.MaxBackoff
	bo.MaxElapsedTime = 0 // retries are bounded by count, not elapsed time

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response

	operation := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, doErr := c.httpClient.Do(req.Clone(ctx))
			if doErr != nil {
				return nil, doErr
			}
			// 5xx counts as a failure so the breaker sees provider trouble.
			if r.StatusCode >= 500 {
				return r, &serverError{status: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if resp != nil {
				lastResp = resp
			}
			c.observeFailure(err)
			return err
		}

		lastResp = resp
		c.observeSuccess()
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		// A 5xx that exhausted retries still hands the response to the
		// caller so status-specific error mapping can run.
		if lastResp != nil {
			return lastResp, nil
		}
		c.observeFailure(err)
		return nil, err
	}

	return lastResp, nil
}

// State returns the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the circuit breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

func (c *Client) observeSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
}

func (c *Client) observeFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
}

// serverError marks a 5xx response as a breaker-visible failure.
type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.status, http.StatusText(e.status))
}
