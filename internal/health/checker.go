// Package health runs the registry health monitor: a low-frequency
// background task that probes each running MCP server instance and stamps
// its last-health-check timestamp. Failure is observability only — it
// never tears an instance down.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/infra/metrics"
	"github.com/archestra-ai/gateway/internal/mcp"
)

var healthLog = gwlog.For("health")

// Status is one server's most recent liveness result.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker periodically probes every server the registry knows about.
type Checker struct {
	registry *mcp.Registry
	interval time.Duration

	mu       sync.RWMutex
	statuses map[string]Status
}

// NewChecker builds a Checker bound to registry, probing every interval
// (domain-default 30s, per the gateway config's health_check_interval).
func NewChecker(registry *mcp.Registry, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checker{registry: registry, interval: interval, statuses: make(map[string]Status)}
}

// Run starts the probe loop. Call in a goroutine; it returns when ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	names := c.registry.Names()
	statuses := make(map[string]Status, len(names))

	for _, name := range names {
		healthy := c.registry.Probe(ctx, name)
		now := time.Now()
		c.registry.MarkHealthCheck(name, now, healthy)

		statusValue := 0.0
		if healthy {
			statusValue = 1.0
		} else {
			healthLog.Warn("server %s failed liveness probe", name)
		}
		metrics.ServerHealthStatus.WithLabelValues(name).Set(statusValue)

		statuses[name] = Status{Name: name, Healthy: healthy, CheckedAt: now}
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest probe result per server, for GET /health.
func (c *Checker) Statuses() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// IsHealthy reports whether every known server passed its latest probe.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
