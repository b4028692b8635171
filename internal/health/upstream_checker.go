package health

import (
	"context"
	"time"
)

// Pinger reaches a remote service without credentials.
type Pinger interface {
	Ping(ctx context.Context) error
	BaseURL() string
}

// UpstreamChecker reports whether the remote actor service answers. A slow
// answer is degraded; no answer is unhealthy.
type UpstreamChecker struct {
	pinger   Pinger
	slowOver time.Duration
}

// NewUpstreamChecker creates a checker that calls p.
func NewUpstreamChecker(p Pinger) *UpstreamChecker {
	return &UpstreamChecker{pinger: p, slowOver: 2 * time.Second}
}

// Name implements Checker.
func (c *UpstreamChecker) Name() string { return "upstream-api" }

// Check implements Checker.
func (c *UpstreamChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	err := c.pinger.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Unhealthy("remote actor service unreachable").
			WithDetail("base_url", c.pinger.BaseURL()).
			WithDetail("error", err.Error()).
			WithLatency(latency)
	}
	if latency > c.slowOver {
		return Degraded("remote actor service is slow").
			WithDetail("base_url", c.pinger.BaseURL()).
			WithLatency(latency)
	}
	return Healthy("remote actor service reachable").
		WithDetail("base_url", c.pinger.BaseURL()).
		WithLatency(latency)
}
