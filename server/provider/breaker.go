package provider

import (
	"context"
	stderrors "errors"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// newBreaker creates the upstream circuit breaker. Transport failures and
// 5xx responses count as failures; 4xx responses and canceled requests do not.
func newBreaker(cfg config.CircuitBreakerConfig, m *metrics.Metrics, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if m != nil {
				m.BreakerState.Set(float64(to))
			}
		},
	})
}
