package domain

import "time"

// ─── Request-Log Record ─────────────────────────────────────────────────────

// ClientInfo captures the optional caller-identifying headers on a proxy
// request.
type ClientInfo struct {
	UserAgent string `json:"user_agent,omitempty"`
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// RequestLogRecord is one immutable row written for every /mcp/{server}
// proxy request, success or failure.
type RequestLogRecord struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	McpSessionID    string            `json:"mcp_session_id,omitempty"`
	ServerName      string            `json:"server_name"`
	ClientInfo      *ClientInfo       `json:"client_info,omitempty"`
	Method          string            `json:"method,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers"`
	ResponseHeaders map[string]string `json:"response_headers"`
	RequestBody     string            `json:"request_body"`
	ResponseBody    string            `json:"response_body"`
	StatusCode      int               `json:"status_code"`
	Error           string            `json:"error,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	CreatedAt       time.Time         `json:"created_at"`
}

// RequestLogStats is the aggregate the stats endpoint (§3a) computes.
type RequestLogStats struct {
	TotalRequests  int64           `json:"total_requests"`
	ByServer       map[string]int64 `json:"by_server"`
	ByStatus       map[int]int64    `json:"by_status"`
	P50DurationMs  int64           `json:"p50_duration_ms"`
	P99DurationMs  int64           `json:"p99_duration_ms"`
}

// ExternalClient is the supplementary lookup-table row (§3a) populated
// opportunistically from the x-client-name header.
type ExternalClient struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Enabled    bool      `json:"enabled"`
}
