// Package upstream provides typed HTTP clients for the three reasoning
// services the chat pipeline depends on: the planner, the decision engine,
// and the answerer. Calls carry per-service timeouts, bounded retry with
// exponential backoff, and transient/fatal error classification so callers
// can decide what is recoverable.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseSize limits upstream response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Service names used in logs, health reports, and error messages.
const (
	ServicePlanner  = "planner"
	ServiceDecision = "decision"
	ServiceAnswerer = "answerer"
)

// ServiceConfig describes one upstream service endpoint.
type ServiceConfig struct {
	// Name identifies the service in logs and health reports.
	Name string

	// URL is the service base URL. Empty means not configured.
	URL string

	// Timeout bounds one logical call including all retries.
	Timeout time.Duration

	// Retry controls attempts and backoff within the timeout.
	Retry RetryPolicy
}

// Config holds the endpoint configuration for all three services.
type Config struct {
	Planner  ServiceConfig
	Decision ServiceConfig
	Answerer ServiceConfig
}

// Client calls the upstream reasoning services.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	health     *healthState

	// sleep waits between retries; replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithSleep replaces the backoff sleep function. Intended for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(client *Client) {
		client.sleep = sleep
	}
}

// NewClient creates an upstream client for the configured services.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{}, // Deadlines come from per-call contexts.
		logger:     slog.Default(),
		health:     newHealthState(DefaultHealthConfig()),
		sleep:      sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// call performs one logical call to a service: it applies the service
// timeout, retries transient failures with exponential backoff, and decodes
// the JSON response into out. The returned error preserves the
// transient/fatal/timeout classification of the last attempt.
func (c *Client) call(ctx context.Context, svc ServiceConfig, path string, headers map[string]string, reqBody, out any) error {
	if svc.URL == "" {
		return NewFatalError(fmt.Errorf("%s service is not configured", svc.Name))
	}

	if !c.health.available(svc.Name) {
		return NewTransientError(fmt.Errorf("%s circuit open, skipping call", svc.Name))
	}

	ctx, cancel := context.WithTimeout(ctx, svc.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= svc.Retry.MaxAttempts; attempt++ {
		err := c.doRequest(ctx, svc, path, headers, reqBody, out)
		if err == nil {
			c.health.markSuccess(svc.Name)
			return nil
		}

		lastErr = err

		if IsFatal(err) {
			// Config or contract problems; the endpoint itself may be fine.
			return err
		}

		if attempt < svc.Retry.MaxAttempts {
			backoff := svc.Retry.Backoff(attempt)
			c.logger.Debug("Upstream call failed, retrying",
				"service", svc.Name,
				"attempt", attempt,
				"max_attempts", svc.Retry.MaxAttempts,
				"backoff", backoff,
				"error", err)

			if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
				c.health.markFailure(svc.Name)
				return fmt.Errorf("%s retry interrupted: %w", svc.Name, sleepErr)
			}
		}
	}

	c.health.markFailure(svc.Name)
	return fmt.Errorf("%s failed after %d attempts: %w", svc.Name, svc.Retry.MaxAttempts, lastErr)
}

// doRequest executes a single HTTP POST against the service.
func (c *Client) doRequest(ctx context.Context, svc ServiceConfig, path string, headers map[string]string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return NewFatalError(fmt.Errorf("marshal %s request: %w", svc.Name, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.URL+path, bytes.NewReader(body))
	if err != nil {
		return NewFatalError(fmt.Errorf("create %s request: %w", svc.Name, err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("Sending upstream request",
		"service", svc.Name,
		"url", svc.URL+path)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors (including deadline expiry) are transient.
		return NewTransientError(fmt.Errorf("%s request failed: %w", svc.Name, err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return NewTransientError(fmt.Errorf("read %s response: %w", svc.Name, err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return classifyHTTPError(svc.Name, httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return NewSchemaError(svc.Name, err.Error())
	}

	return nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(service string, statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("%s API error (status %d): %s", service, statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest,
		statusCode == http.StatusUnprocessableEntity:
		// The request contract was violated; retrying cannot help
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}
