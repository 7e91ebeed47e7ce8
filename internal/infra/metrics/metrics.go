// Package metrics provides the gateway's Prometheus instrumentation:
// orchestration throughput, correlator health, registry activity, and
// proxy latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Orchestrator ───────────────────────────────────────────────────────────

// OrchestrationsStarted counts chat-stream orchestrations admitted past the
// concurrency semaphore.
var OrchestrationsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "orchestrations_started_total",
	Help:      "Total chat-stream orchestrations that began running.",
})

// OrchestrationsCompleted counts orchestrations that reached the terminal
// round and emitted [DONE].
var OrchestrationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "orchestrations_completed_total",
	Help:      "Total chat-stream orchestrations that completed successfully.",
})

// OrchestrationsRejected counts submissions turned away by the K=10
// concurrency bound.
var OrchestrationsRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "orchestrations_rejected_total",
	Help:      "Total chat-stream orchestrations rejected as too busy.",
})

// ToolCallsInvoked counts tool calls forwarded to MCP servers by the
// orchestrator's tool-calling loop.
var ToolCallsInvoked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "tool_calls_total",
	Help:      "Total tool calls invoked by the orchestrator, by server name.",
}, []string{"server"})

// ─── Correlator / Registry ──────────────────────────────────────────────────

// CorrelatorDiscards counts buffered response lines evicted before any
// caller claimed them.
var CorrelatorDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "correlator_discards_total",
	Help:      "Total response-buffer entries evicted unclaimed, by server.",
}, []string{"server"})

// RegistryOperations counts Start/Stop/Forward calls against the server
// registry, by operation and outcome.
var RegistryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gateway",
	Name:      "registry_operations_total",
	Help:      "Total server registry operations, by operation and outcome.",
}, []string{"operation", "outcome"})

// ResponseBufferDepth tracks the current occupancy of a server's response
// buffer, for watching approach to the B=1000 cap.
var ResponseBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gateway",
	Name:      "response_buffer_depth",
	Help:      "Current response buffer occupancy, by server.",
}, []string{"server"})

// ─── HTTP proxy ─────────────────────────────────────────────────────────────

// ProxyRequestDuration tracks /mcp/{server_name} request latency.
var ProxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gateway",
	Name:      "proxy_request_duration_seconds",
	Help:      "Duration of MCP proxy requests, by server name and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"server", "status"})

// ─── Health ─────────────────────────────────────────────────────────────────

// ServerHealthStatus tracks the registry health monitor's latest verdict
// per server (1=healthy, 0=unhealthy).
var ServerHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gateway",
	Name:      "mcp_server_health_status",
	Help:      "Latest health check result per MCP server (1=healthy, 0=unhealthy).",
}, []string{"server"})
