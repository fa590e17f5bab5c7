// Package api provides the outbound HTTP transport for dispatch attempts.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/throttleq/throttleq/internal/logging"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorf("[transport retry] %s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnf("[transport retry] %s %v", msg, keysAndValues)
}

// retryablehttp logs every attempt at info; demote to debug so normal
// runs stay quiet.
func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("[transport] %s %v", msg, keysAndValues)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("[transport] %s %v", msg, keysAndValues)
}

// Client posts job payloads to a single endpoint URL with bearer
// authentication and decodes the JSON response.
//
// Retry layering: this client only retries connection-level failures
// (refused, reset, timed out before a response). Any HTTP response,
// including 429s and 5xxs, is returned to the dispatcher untouched.
// Application-level retries belong to the batch retry queue, and
// rate-limit handling to the cooldown policy.
type Client struct {
	httpClient *nethttp.Client
	url        string
	apiKey     string
}

// NewClient creates a client for the given endpoint.
func NewClient(url, apiKey string, log *logging.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = newPooledClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}
	retryClient.CheckRetry = transportOnlyRetryPolicy

	return &Client{
		httpClient: retryClient.StandardClient(),
		url:        url,
		apiKey:     apiKey,
	}
}

// transportOnlyRetryPolicy retries only when no HTTP response was
// obtained. Responses carrying error statuses are final here; the
// dispatcher classifies them from the body.
func transportOnlyRetryPolicy(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

// Call issues one POST attempt and decodes the response body.
// No per-call deadline is applied beyond ctx; the batch layer has no
// per-request timeout by design.
func (c *Client) Call(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	return decoded, nil
}

// URL returns the configured endpoint URL.
func (c *Client) URL() string {
	return c.url
}
