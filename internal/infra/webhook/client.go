package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"crosspost/internal/platform"
)

const defaultRequestTimeout = 30 * time.Second

// RateInfoFunc receives platform-reported rate-limit state parsed from
// response headers: remaining calls in the window and the window reset
// time. Wired to the limiter's ApplyReported.
type RateInfoFunc func(platform string, remaining int, reset time.Time)

// Config holds the configuration for a webhook platform client.
type Config struct {
	// Platform declares the platform's limits and rate parameters
	Platform platform.PlatformConfig

	// AuthToken is sent as a bearer token when non-empty
	AuthToken string

	// OnRateInfo is called whenever a response carries rate-limit
	// headers. Optional.
	OnRateInfo RateInfoFunc
}

// Client delivers formatted payloads to a platform's webhook endpoint.
// It implements platform.Adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a webhook client for the given platform.
//
// The HTTP client enforces TLS 1.2+ and uses the platform's configured
// request timeout (default 30s). This per-request timeout is the inner
// bound; the dispatch-level timeout wrapper bounds the whole retried
// sequence.
func NewClient(cfg Config) *Client {
	timeout := cfg.Platform.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// Name returns the platform identifier.
func (c *Client) Name() string {
	return c.cfg.Platform.Name
}

// Config returns the platform's limits and rate parameters.
func (c *Client) Config() platform.PlatformConfig {
	return c.cfg.Platform
}

// postResponse is the JSON body a platform returns for a created post.
type postResponse struct {
	ID string `json:"id"`
}

// errorResponse is the JSON error body some platforms return, carrying a
// retry_after hint in seconds.
type errorResponse struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
}

// Post delivers a formatted payload to the platform endpoint.
//
// Response classification:
//   - 2xx: success, external id extracted from the response body
//   - 429: *RateLimitError with retry-after from body or header
//   - other 4xx: *ClientError (terminal)
//   - 5xx: *ServerError (transient)
//   - transport failure: wrapped network error (transient)
func (c *Client) Post(ctx context.Context, payload platform.Payload) (*platform.PostReceipt, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Platform.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	c.reportRateInfo(resp)

	// Success
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var created postResponse
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			// Some webhook endpoints acknowledge with an empty body;
			// fall back to a header-provided id.
			created.ID = resp.Header.Get("X-Post-Id")
		}
		if created.ID == "" {
			return nil, &ServerError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("%s accepted the post but returned no id", c.cfg.Platform.Name),
			}
		}
		return &platform.PostReceipt{ExternalID: created.ID}, nil
	}

	// Rate limit error (429)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Message:    fmt.Sprintf("%s rate limit exceeded", c.cfg.Platform.Name),
			RetryAfter: extractRetryAfter(resp, body),
		}
	}

	// Client error (4xx, terminal)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s rejected the post (%d): %s", c.cfg.Platform.Name, resp.StatusCode, string(body)),
		}
	}

	// Server error (5xx, transient)
	if resp.StatusCode >= 500 {
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s server error (%d): %s", c.cfg.Platform.Name, resp.StatusCode, string(body)),
		}
	}

	return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// ValidateCredentials checks the configured credentials against the
// platform endpoint. A 401/403 means the credentials are rejected; any
// other response, including errors the endpoint may raise for the probe
// itself, counts as accepted.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Platform.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("create credential probe: %w", err)
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute credential probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s rejected credentials (%d)", c.cfg.Platform.Name, resp.StatusCode),
		}
	}
	return nil
}

// reportRateInfo parses X-RateLimit-Remaining / X-RateLimit-Reset headers
// and forwards them to the configured callback.
func (c *Client) reportRateInfo(resp *http.Response) {
	if c.cfg.OnRateInfo == nil {
		return
	}

	remainingHeader := resp.Header.Get("X-RateLimit-Remaining")
	if remainingHeader == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingHeader)
	if err != nil {
		slog.Debug("unparseable rate limit header",
			slog.String("platform", c.cfg.Platform.Name),
			slog.String("value", remainingHeader))
		return
	}

	var reset time.Time
	if resetHeader := resp.Header.Get("X-RateLimit-Reset"); resetHeader != "" {
		if unix, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
			reset = time.Unix(unix, 0)
		}
	}

	c.cfg.OnRateInfo(c.cfg.Platform.Name, remaining, reset)
}

// extractRetryAfter extracts the retry-after duration from a 429 response.
// It tries the JSON body first, then falls back to the Retry-After header.
//
// Returns a default of 5 seconds if neither is present.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter * float64(time.Second))
	}

	if retryAfterHeader := resp.Header.Get("Retry-After"); retryAfterHeader != "" {
		if seconds, err := strconv.Atoi(retryAfterHeader); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}
