// Package brreg provides a client for the Brønnøysund Register Centre open
// data APIs: Enhetsregisteret (legal units) and Regnskapsregisteret
// (annual accounts).
package brreg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/brreg-matcher/internal/orgnr"
	"github.com/sells-group/brreg-matcher/internal/resilience"
)

const (
	DefaultUnitsBaseURL    = "https://data.brreg.no/enhetsregisteret/api/enheter"
	DefaultAccountsBaseURL = "https://data.brreg.no/regnskapsregisteret/regnskap"
	DefaultUserAgent       = "brreg-matcher/1.0"
	DefaultTimeout         = 8 * time.Second
)

// ErrInvalidOrgNumber is returned without a request when the org number
// fails the checksum.
var ErrInvalidOrgNumber = eris.New("brreg: invalid organization number")

// Client defines the registry lookups used for enrichment. A nil result
// with a nil error means the registry has no data for the org number.
type Client interface {
	// Unit fetches the Enhetsregisteret entry.
	Unit(ctx context.Context, orgNumber string) (*Unit, error)
	// Employees returns the registered employee count.
	Employees(ctx context.Context, orgNumber string) (*int, error)
	// Accounts returns revenue and profit from the latest annual accounts.
	Accounts(ctx context.Context, orgNumber string) (*Accounts, error)
	// Search pages through Enhetsregisteret for units matching q.
	Search(ctx context.Context, q SearchQuery) ([]Unit, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithUnitsBaseURL overrides the Enhetsregisteret base URL.
func WithUnitsBaseURL(url string) Option {
	return func(c *httpClient) {
		c.unitsURL = url
	}
}

// WithAccountsBaseURL overrides the Regnskapsregisteret base URL.
func WithAccountsBaseURL(url string) Option {
	return func(c *httpClient) {
		c.accountsURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout. d <= 0 keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d <= 0 {
			return
		}
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *httpClient) {
		c.retry = p
	}
}

// WithRateLimit caps outgoing requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	unitsURL    string
	accountsURL string
	userAgent   string
	http        *http.Client
	retry       resilience.Policy
	limiter     *rate.Limiter
}

// NewClient creates a registry client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		unitsURL:    DefaultUnitsBaseURL,
		accountsURL: DefaultAccountsBaseURL,
		userAgent:   DefaultUserAgent,
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Limit(20), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.LogRetry("brreg", "get")
	}
	return c
}

// getJSON fetches url and decodes the body into v. found is false for
// 404 and 410, which the registry uses for unknown or deleted units.
func (c *httpClient) getJSON(ctx context.Context, url string, v any) (found bool, err error) {
	body, err := resilience.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, url)
	})
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, eris.Wrapf(err, "brreg: decode %s", url)
	}
	return true, nil
}

// get performs one attempt. A nil body with nil error means not found.
func (c *httpClient) get(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "brreg: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brreg: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "brreg: get %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "brreg: read body"), 0)
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, nil
	case resilience.IsTransientStatus(resp.StatusCode):
		return nil, &resilience.TransientError{
			Err:        fmt.Errorf("brreg: %s returned %d", url, resp.StatusCode),
			StatusCode: resp.StatusCode,
			RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("brreg: %s returned %d: %s", url, resp.StatusCode, string(snippet))
	}
}

func checkOrgNumber(s string) (string, error) {
	s = orgnr.Clean(s)
	if !orgnr.Valid(s) {
		return "", ErrInvalidOrgNumber
	}
	return s, nil
}
