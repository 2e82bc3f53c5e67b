package provider

import "github.com/sony/gobreaker"

// BreakerState returns the circuit breaker state, or StateClosed when the
// breaker is disabled.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}
