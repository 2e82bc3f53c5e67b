package provider

import (
	"context"
	stderrors "errors"
	"math"
	"net/http"
	"time"

	"github.com/ivfcopilot/copilot/config"
)

// retryPolicy decides whether an attempt is repeated. The zero value never
// retries.
type retryPolicy struct {
	maxRetries    int
	initialDelay  time.Duration
	maxDelay      time.Duration
	multiplier    float64
	onRateLimit   bool
	onTimeout     bool
	onServerError bool
}

func newRetryPolicy(cfg config.RetryConfig) retryPolicy {
	p := retryPolicy{
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		multiplier:   cfg.Multiplier,
	}
	for _, kind := range cfg.RetryableErrors {
		switch kind {
		case "rate_limit":
			p.onRateLimit = true
		case "timeout":
			p.onTimeout = true
		case "server_error":
			p.onServerError = true
		}
	}
	return p
}

// shouldRetry reports whether the outcome of attempt (zero based) warrants
// another try.
func (p retryPolicy) shouldRetry(attempt int, resp *Response, err error) bool {
	if attempt >= p.maxRetries {
		return false
	}

	if err != nil {
		if stderrors.Is(err, ErrCircuitOpen) ||
			stderrors.Is(err, ErrInvalidResponse) ||
			stderrors.Is(err, context.Canceled) {
			return false
		}
		return p.onTimeout
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return p.onRateLimit
	case resp.StatusCode >= http.StatusInternalServerError:
		return p.onServerError
	}
	return false
}

// delay returns the backoff before retry number attempt+1.
func (p retryPolicy) delay(attempt int) time.Duration {
	multiplier := p.multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(p.initialDelay) * math.Pow(multiplier, float64(attempt))
	if p.maxDelay > 0 && d > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(d)
}
