// Package provider implements the client for the upstream completion service
// (OpenAI Responses API).
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// Client sends completion requests upstream. A Client is immutable after
// construction and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	timeout    time.Duration
	retry      retryPolicy
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records upstream metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client from the upstream and circuit breaker settings.
func NewClient(cfg config.UpstreamConfig, cbCfg config.CircuitBreakerConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		retry:      newRetryPolicy(cfg.Retry),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cbCfg.Enabled {
		c.breaker = newBreaker(cbCfg, c.metrics, c.logger)
	}
	return c
}

// Complete sends input to the completion service and returns the upstream
// status and body. A non-2xx status is not an error. Errors are transport
// failures, invalid JSON bodies and an open circuit (ErrCircuitOpen).
func (c *Client) Complete(ctx context.Context, input []Message) (*Response, error) {
	payload, err := json.Marshal(Request{Model: c.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.execute(ctx, payload)

		if !c.retry.shouldRetry(attempt, resp, err) {
			return resp, err
		}

		delay := c.retry.delay(attempt)
		fields := []zap.Field{
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
		}
		c.logger.Warn("Retrying upstream request", fields...)
		if c.metrics != nil {
			c.metrics.UpstreamRetries.Inc()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if resp != nil {
				return resp, nil
			}
			return nil, fmt.Errorf("upstream request: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// execute runs one attempt, through the circuit breaker when enabled.
func (c *Client) execute(ctx context.Context, payload []byte) (*Response, error) {
	if c.breaker == nil {
		return c.send(ctx, payload)
	}

	v, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.send(ctx, payload)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})

	switch {
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	case stderrors.Is(err, errServerStatus):
		return v.(*Response), nil
	case err != nil:
		return nil, err
	}
	return v.(*Response), nil
}

// send performs a single HTTP round trip.
func (c *Client) send(ctx context.Context, payload []byte) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("error", start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.observe(fmt.Sprint(resp.StatusCode), start)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if !json.Valid(body) {
		c.logger.Error("Upstream returned a non-JSON body",
			zap.Int("status", resp.StatusCode),
			zap.Int("body_size", len(body)),
		)
		return nil, fmt.Errorf("%w: status %d, body is not valid JSON", ErrInvalidResponse, resp.StatusCode)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       json.RawMessage(body),
	}, nil
}

func (c *Client) observe(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequests.WithLabelValues(status).Inc()
	c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
}
