package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Server registry errors
	ErrServerExists   = errors.New("mcp server already running under this name")
	ErrServerNotFound = errors.New("mcp server not found")

	// Transport errors
	ErrTransportSpawn  = errors.New("transport: failed to spawn container")
	ErrTransportWrite  = errors.New("transport: failed to write request")
	ErrTransportRead   = errors.New("transport: failed to read response")
	ErrTransportStatus = errors.New("transport: unexpected status code")
	ErrTransportDecode = errors.New("transport: failed to decode response")

	// Correlator errors
	ErrCorrelatorTimeout = errors.New("request timeout")

	// Chat persistence errors
	ErrChatNotFound        = errors.New("chat not found")
	ErrInteractionNotFound = errors.New("interaction not found")

	// Orchestrator errors
	ErrInvalidSessionID = errors.New("session_id must be a valid uuid")
	ErrMissingModel     = errors.New("model is required")
	ErrMissingMessage   = errors.New("message is required")
	ErrMessageTooLarge  = errors.New("message content exceeds 1 MiB")
	ErrOrchestratorBusy = errors.New("Server is too busy, please try again later")
	ErrOutputSizeCapped = errors.New("orchestration output exceeded the 1 MiB size cap")
	ErrInvalidToolName  = errors.New("invalid tool name format")

	// Proxy errors
	ErrBodyTooLarge       = errors.New("request body exceeds 10 MiB")
	ErrInvalidUTF8        = errors.New("request body is not valid utf-8")
	ErrInvalidProxyTarget = errors.New("proxy target is not permitted")

	// Fatal startup errors
	ErrContainerRuntimeMissing = errors.New("container runtime binary not found on PATH")
)
