package health

import "context"

// RelayStats exposes the state of the run relay.
type RelayStats interface {
	ActiveLoops() int
	Closed() bool
}

// RelayChecker is unhealthy once the relay stopped accepting watches.
type RelayChecker struct {
	relay RelayStats
}

// NewRelayChecker creates a checker for r.
func NewRelayChecker(r RelayStats) *RelayChecker {
	return &RelayChecker{relay: r}
}

// Name implements Checker.
func (c *RelayChecker) Name() string { return "run-relay" }

// Check implements Checker.
func (c *RelayChecker) Check(_ context.Context) *Result {
	if c.relay.Closed() {
		return Unhealthy("run relay is closed")
	}
	return Healthy("run relay accepting watches").
		WithDetail("active_loops", c.relay.ActiveLoops())
}
