// Package optimizerclient implements the HTTP JSON contract with the
// external optimizer backend: POST an OptimizationRequest, receive an
// OptimizationResult. Timeouts, retry count, and TLS verification are
// configurable; failures map onto the network-error taxonomy.
package optimizerclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
	"github.com/cursor-prompt/prompt-optimizer/pkg/healthcheck"
)

// Config controls the client's connection behavior.
type Config struct {
	ServiceURL string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	VerifySSL  bool
}

// Client talks to the optimizer backend over HTTP. A circuit breaker
// sheds load fast once the backend has failed repeatedly.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retries int
	timeout time.Duration
	breaker *healthcheck.CircuitBreaker
	logger  *zap.Logger
}

// New creates a new optimizer backend client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		retries: cfg.Retries,
		timeout: timeout,
		breaker: healthcheck.NewCircuitBreaker("optimizer-backend", healthcheck.DefaultCircuitBreakerConfig()),
		logger:  logger.Named("optimizer-client"),
	}
}

// Optimize submits req to the backend and decodes the result. Transient
// failures (connection errors, 5xx, 429) are retried up to the configured
// retry count with exponential backoff; 4xx responses are not.
func (c *Client) Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return optimization.Result{}, apperrors.NewInternalError("failed to encode optimization request").WithCause(err)
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying optimizer request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return optimization.Result{}, mapContextErr(ctx.Err(), c.timeout)
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		value, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doOptimize(ctx, payload)
		})
		if err == nil {
			return value.(optimization.Result), nil
		}
		lastErr = err

		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			// The breaker is open: shed load without burning the retry
			// budget on guaranteed rejections.
			return optimization.Result{}, apperrors.NewBackendUnreachableError(err)
		}

		if !retryable(err) {
			return optimization.Result{}, err
		}
	}
	return optimization.Result{}, lastErr
}

func (c *Client) doOptimize(ctx context.Context, payload []byte) (optimization.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/optimize", bytes.NewReader(payload))
	if err != nil {
		return optimization.Result{}, apperrors.NewInternalError("failed to build optimizer request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return optimization.Result{}, mapContextErr(ctx.Err(), c.timeout)
		}
		var urlTimeout interface{ Timeout() bool }
		if errors.As(err, &urlTimeout) && urlTimeout.Timeout() {
			return optimization.Result{}, apperrors.NewRequestTimeoutError(c.timeout).WithCause(err)
		}
		return optimization.Result{}, apperrors.NewBackendUnreachableError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return optimization.Result{}, apperrors.NewBackendUnreachableError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return optimization.Result{}, apperrors.NewHTTPStatusError(resp.StatusCode, truncate(string(body), 512)).
			WithMetadata("status", resp.StatusCode)
	}

	var result optimization.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return optimization.Result{}, apperrors.New(apperrors.CategoryNetwork, apperrors.CodeResponseShape,
			apperrors.SeverityMedium, "optimizer backend returned an undecodable response").WithCause(err)
	}
	if result.OptimizedPrompt == "" {
		return optimization.Result{}, apperrors.New(apperrors.CategoryNetwork, apperrors.CodeResponseShape,
			apperrors.SeverityMedium, "optimizer backend response is missing the optimized prompt")
	}

	c.logger.Debug("optimizer request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Ping verifies the backend is reachable, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewBackendUnreachableError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return apperrors.NewHTTPStatusError(resp.StatusCode, "")
	}
	return nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// retryable reports whether an attempt is worth repeating: connection
// failures, timeouts, 5xx, and 429 are; every other HTTP status and all
// non-network errors are not.
func retryable(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	if !appErr.IsTransient() {
		return false
	}
	if appErr.Code == apperrors.CodeHTTPStatus {
		status, _ := appErr.Metadata["status"].(int)
		return status >= 500 || status == http.StatusTooManyRequests
	}
	return appErr.Code != apperrors.CodeResponseShape
}

func mapContextErr(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewRequestTimeoutError(timeout).WithCause(err)
	}
	return apperrors.NewBackendUnreachableError(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
