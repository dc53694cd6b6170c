// Package appsflyer is the client for the attribution platform's report
// export API. Every download goes through httpretry and resolves to a
// classified Result rather than an error.
package appsflyer

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/attribution-monitor/internal/pkg/httpretry"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/pkg/metrics"
)

// App is an inventory entry.
type App struct {
	AppID   string `json:"app_id"`
	AppName string `json:"app_name"`
}

// Config configures the client.
type Config struct {
	BaseURL       string
	APIToken      string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryAfter time.Duration
}

// Client downloads report exports.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient httpretry.HTTPDoer
	policy     httpretry.Policy
	retrier    *httpretry.Retrier
	sleeper    httpretry.Sleeper
	metrics    *metrics.Metrics
}

// NewClient creates a new platform API client
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 90 * time.Second
	}
	c := &Client{
		baseURL:    config.BaseURL,
		apiToken:   config.APIToken,
		httpClient: &http.Client{Timeout: config.Timeout},
		policy: httpretry.Policy{
			MaxRetries:    config.MaxRetries,
			RetryDelay:    config.RetryDelay,
			MaxRetryAfter: config.MaxRetryAfter,
		},
	}
	c.rebuild()
	return c
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
	c.rebuild()
}

// SetSleeper replaces the pause between retries (useful for testing)
func (c *Client) SetSleeper(s httpretry.Sleeper) {
	c.sleeper = s
	c.rebuild()
}

// SetMetrics attaches fetch outcome collectors.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *Client) rebuild() {
	c.retrier = httpretry.NewRetrier(c.httpClient, c.policy)
	if c.sleeper != nil {
		c.retrier.SetSleeper(c.sleeper)
	}
}

// Fetch downloads ep for appID over rng as CSV.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, appID string, rng DateRange) httpretry.Result {
	q := url.Values{}
	q.Set("from", rng.From)
	q.Set("to", rng.To)
	reqURL := ep.URL(c.baseURL, url.PathEscape(appID)) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return httpretry.Result{Kind: httpretry.KindTransient, Err: err}
	}
	req.Header.Set("Accept", "text/csv")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	started := time.Now()
	res := c.retrier.Do(req)
	c.metrics.ObserveFetch(ep.Name, res.Kind.String(), res.Attempts)

	logger.Debug("report fetched",
		"app_id", appID,
		"endpoint", ep.Name,
		"from", rng.From,
		"to", rng.To,
		"outcome", res.Kind.String(),
		"status", res.StatusCode,
		"attempts", res.Attempts,
		"bytes", len(res.Body),
		"elapsed", time.Since(started).String(),
	)
	return res
}
