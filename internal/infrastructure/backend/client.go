// Package backend is the HTTP client for the TractStack backend's analytics,
// content and admin endpoints.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/AtRiskMedia/storykeep-go/internal/domain/analytics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/storykeep-go/internal/infrastructure/tenant"
)

const maxBodyBytes = 32 << 20

// TokenSource supplies the bearer token for admin routes.
type TokenSource interface {
	Token() (string, error)
}

type response struct {
	status      int
	body        []byte
	contentType string
}

// Client talks to one tenant's backend. It is safe for concurrent use.
type Client struct {
	baseURL  string
	tenantID string
	http     *http.Client
	tokens   TokenSource
	cb       *gobreaker.CircuitBreaker[*response]
	logger   *logging.ChanneledLogger
}

var _ analytics.Source = (*Client)(nil)

// NewClient creates a backend client for a tenant configuration.
func NewClient(cfg *tenant.Config, timeout time.Duration, tokens TokenSource, logger *logging.ChanneledLogger) *Client {
	cbName := "backend-" + cfg.TenantID
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		// Cancellations and client errors say nothing about backend health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Fetch().Warn("Circuit breaker state transition", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		baseURL:  cfg.BackendURL,
		tenantID: cfg.TenantID,
		http:     &http.Client{Timeout: timeout},
		tokens:   tokens,
		cb:       cb,
		logger:   logger,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// get performs a GET through the circuit breaker. 2xx and 304 answers are returned;
// anything else becomes a *StatusError.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) (*response, error) {
	start := time.Now()
	resp, err := c.cb.Execute(func() (*response, error) {
		return c.do(ctx, endpoint, path, params)
	})

	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case err != nil:
		outcome = "failure"
	}
	metrics.BackendRequestDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, endpoint, path string, params url.Values) (*response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("X-Tenant-ID", c.tenantID)
	req.Header.Set("X-Request-ID", security.GenerateULID())
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to mint admin token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if httpResp.StatusCode == http.StatusNotModified {
		return &response{status: httpResp.StatusCode}, nil
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newStatusError(endpoint, httpResp.StatusCode, body)
	}

	c.logger.Fetch().Debug("Backend request completed", "endpoint", endpoint, "status", httpResp.StatusCode, "bytes", len(body), "tenantId", c.tenantID)
	return &response{status: httpResp.StatusCode, body: body, contentType: httpResp.Header.Get("Content-Type")}, nil
}

func (c *Client) fetchPayload(ctx context.Context, endpoint, path string, params map[string]string) (*analytics.Payload, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	resp, err := c.get(ctx, endpoint, path, values)
	if err != nil {
		return nil, err
	}

	if status := PayloadStatus(resp.body); analytics.IsPending(status) {
		c.logger.Fetch().Debug("Backend still computing", "endpoint", endpoint, "status", status, "tenantId", c.tenantID)
		return pendingPayload(resp.body, status), nil
	}

	var payload analytics.Payload
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	if payload.Status == "" {
		payload.Status = analytics.StatusComplete
	}
	return &payload, nil
}

// FetchAll retrieves GET /api/v1/analytics/all.
func (c *Client) FetchAll(ctx context.Context, params map[string]string) (*analytics.Payload, error) {
	return c.fetchPayload(ctx, "analytics_all", "/api/v1/analytics/all", params)
}

// FetchEpinet retrieves GET /api/v1/analytics/epinet/{id}.
func (c *Client) FetchEpinet(ctx context.Context, epinetID string, params map[string]string) (*analytics.Payload, error) {
	if epinetID == "" {
		return nil, errors.New("epinet id is required")
	}
	return c.fetchPayload(ctx, "analytics_epinet", "/api/v1/analytics/epinet/"+url.PathEscape(epinetID), params)
}

// ContentSummary retrieves GET /api/v1/analytics/content-summary.
func (c *Client) ContentSummary(ctx context.Context) ([]analytics.HotItem, error) {
	resp, err := c.get(ctx, "content_summary", "/api/v1/analytics/content-summary", nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		HotContent []analytics.HotItem `json:"hotContent"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode content summary: %w", err)
	}
	return out.HotContent, nil
}

// ContentMap retrieves GET /api/v1/content/full-map. A 304 answer returns no items
// and the caller's lastUpdated.
func (c *Client) ContentMap(ctx context.Context, lastUpdated int64) ([]analytics.ContentInfo, int64, error) {
	params := url.Values{}
	if lastUpdated > 0 {
		params.Set("lastUpdated", strconv.FormatInt(lastUpdated, 10))
	}

	resp, err := c.get(ctx, "content_map", "/api/v1/content/full-map", params)
	if err != nil {
		return nil, 0, err
	}
	if resp.status == http.StatusNotModified {
		return nil, lastUpdated, nil
	}

	var out struct {
		Data struct {
			Data        []analytics.ContentInfo `json:"data"`
			LastUpdated int64                   `json:"lastUpdated"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode content map: %w", err)
	}
	return out.Data.Data, out.Data.LastUpdated, nil
}

// LeadsCSV retrieves GET /api/v1/admin/leads/download.
func (c *Client) LeadsCSV(ctx context.Context) ([]byte, string, error) {
	resp, err := c.get(ctx, "leads_download", "/api/v1/admin/leads/download", nil)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.contentType
	if contentType == "" {
		contentType = "text/csv"
	}
	return resp.body, contentType, nil
}

// TenantID returns the tenant this client is scoped to.
func (c *Client) TenantID() string {
	return c.tenantID
}
