// Package source fetches records from the time-tracking API, page by page or
// day by day, under a fixed minimum inter-request delay.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pmichalski/clocksync/internal/pipeline"
	"github.com/pmichalski/clocksync/pkg/metrics"
	"github.com/pmichalski/clocksync/pkg/retry"
)

// statusError is a non-200 response. 5xx responses are transient and
// retried; 4xx responses are permanent and abort the request immediately.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("http %d", e.status)
	}
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// isTransient retries network errors and 5xx; a 4xx is a contract or
// credential problem that more attempts will not fix.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return true
}

// Client is the authenticated HTTP transport for the source API. A single
// request that exhausts its retry budget surfaces as ErrSourceUnavailable.
type Client struct {
	BaseURL     string
	ReportsURL  string
	APIKey      string
	WorkspaceID string

	// Delay is the minimum time between consecutive requests, enforced
	// regardless of success or failure.
	Delay time.Duration

	HTTP  *http.Client
	Retry retry.Policy

	lastRequest time.Time
}

func NewClient(baseURL, reportsURL, apiKey, workspaceID string, delay time.Duration) *Client {
	return &Client{
		BaseURL:     baseURL,
		ReportsURL:  reportsURL,
		APIKey:      apiKey,
		WorkspaceID: workspaceID,
		Delay:       delay,
		HTTP:        &http.Client{Timeout: 60 * time.Second},
		Retry:       retry.Policy{MaxAttempts: 3, InitialDelay: time.Second, Transient: isTransient},
	}
}

// do issues one logical request with bounded transport retries, enforcing
// the inter-request delay before each attempt.
func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body []byte
	err := c.Retry.Do(ctx, func() error {
		c.throttle(ctx)

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return &statusError{status: http.StatusBadRequest, body: err.Error()}
		}
		req.Header.Set("X-Api-Key", c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			metrics.SourceRequests.WithLabelValues("network_error").Inc()
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode >= 500 {
				metrics.SourceRequests.WithLabelValues("5xx").Inc()
			} else {
				metrics.SourceRequests.WithLabelValues("4xx").Inc()
			}
			return &statusError{status: resp.StatusCode, body: string(b)}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			metrics.SourceRequests.WithLabelValues("network_error").Inc()
			return err
		}
		metrics.SourceRequests.WithLabelValues("success").Inc()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", pipeline.ErrSourceUnavailable, method, url, err)
	}
	return body, nil
}

// throttle suspends until the minimum inter-request delay has elapsed since
// the previous request. This is a deliberate synchronous suspension, not a
// background timer.
func (c *Client) throttle(ctx context.Context) {
	if c.Delay > 0 {
		if wait := c.Delay - time.Since(c.lastRequest); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
	}
	c.lastRequest = time.Now()
}
