package health

import (
	"context"
	"fmt"

	"github.com/pharmaconsult/searchcache/resilience"
)

// CircuitChecker reports a backend's circuit breaker state.
// Closed is Healthy, half-open is Degraded, open is Unhealthy.
type CircuitChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewCircuitChecker creates a checker for one backend breaker.
func NewCircuitChecker(name string, breaker *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{name: name, breaker: breaker}
}

// Name returns the backend name.
func (c *CircuitChecker) Name() string {
	return c.name
}

// Check reads the breaker state.
func (c *CircuitChecker) Check(context.Context) Result {
	if c.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	m := c.breaker.Metrics()
	details := map[string]any{
		"state":                m.State.String(),
		"consecutive_failures": m.ConsecutiveFailures,
		"requests":             m.Requests,
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy(fmt.Sprintf("backend %s circuit open", c.name), resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded(fmt.Sprintf("backend %s recovering", c.name)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("backend %s circuit closed", c.name)).WithDetails(details)
}
