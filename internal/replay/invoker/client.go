// Package invoker issues the authenticated remote call for each batch and classifies the
// response.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/replay-tools/internal/auth"
	"github.com/cuongbtq/replay-tools/internal/replay/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// maxLoggedBody bounds the response body kept in logs and errors
	maxLoggedBody = 4 << 10
	// maxReadBody bounds how much of a response is read at all
	maxReadBody = 1 << 20
)

// Result is the classified outcome of one call
type Result struct {
	Status     domain.Status
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Config holds invoker configuration
type Config struct {
	HTTPClient  *http.Client
	BaseURL     string
	Endpoint    Endpoint
	Credentials auth.CredentialProvider
	Audience    string
	Group       string
	Env         string
	Logger      *slog.Logger
}

// Client calls one endpoint of one service in one environment
type Client struct {
	httpClient  *http.Client
	baseURL     string
	endpoint    Endpoint
	credentials auth.CredentialProvider
	audience    string
	group       string
	env         string
	logger      *slog.Logger
}

// NewClient creates a new invoker Client
func NewClient(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		endpoint:    cfg.Endpoint,
		credentials: cfg.Credentials,
		audience:    cfg.Audience,
		group:       cfg.Group,
		env:         cfg.Env,
		logger:      cfg.Logger.With(slog.String("endpoint", cfg.Endpoint.Name())),
	}
}

// NewHTTPClient returns an HTTP client whose transport records a client span per request
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Endpoint returns the endpoint strategy the client calls
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Invoke performs one call for the batch. A response classified as an error, or a call
// that produced no response, returns a *domain.RemoteError alongside the result. Token
// failures return a *domain.AuthError. The call is never retried.
func (c *Client) Invoke(ctx context.Context, batch []domain.WorkItem) (Result, error) {
	path, body, err := c.endpoint.Request(batch)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build %s request: %w", c.endpoint.Name(), err)
	}

	token, err := c.credentials.Token(ctx, c.audience, c.group, c.env)
	if err != nil {
		return Result{}, err
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Result{}, fmt.Errorf("failed to marshal %s request: %w", c.endpoint.Name(), err)
		}
		payload = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", auth.Header(token))

	c.logger.Debug("Calling remote endpoint",
		slog.String("url", url),
		slog.Int("items", len(batch)),
		slog.String("first", batch[0].String()),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Remote call failed",
			slog.String("url", url),
			slog.Int("items", len(batch)),
			slog.Any("error", err),
		)
		return Result{Status: domain.StatusError, Duration: time.Since(start)}, &domain.RemoteError{
			Endpoint: c.endpoint.Name(),
			Err:      err,
		}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxReadBody))
	result := Result{
		Status:     c.endpoint.Classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Body:       truncate(strings.TrimSpace(string(raw)), maxLoggedBody),
		Duration:   time.Since(start),
	}

	attrs := []any{
		slog.String("url", url),
		slog.Int("items", len(batch)),
		slog.Int("status_code", result.StatusCode),
		slog.String("status", string(result.Status)),
		slog.String("body", result.Body),
		slog.Duration("latency", result.Duration),
	}
	if readErr != nil {
		attrs = append(attrs, slog.String("read_error", readErr.Error()))
	}

	switch result.Status {
	case domain.StatusSuccess:
		c.logger.Info("Remote call succeeded", attrs...)
	case domain.StatusNotFound:
		c.logger.Info("Remote call returned not found, skipping", attrs...)
	default:
		c.logger.Error("Remote call returned an error", attrs...)
		return result, &domain.RemoteError{
			Endpoint:   c.endpoint.Name(),
			StatusCode: result.StatusCode,
			Body:       result.Body,
		}
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
