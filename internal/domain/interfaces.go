package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers. Infrastructure
// implements them; application layer depends on them.

// ChatStore abstracts Chat/Interaction persistence.
type ChatStore interface {
	FindChatBySession(sessionID string) (*Chat, error)
	CreateChat(provider string) (*Chat, error)
	CreateChatWithSession(sessionID, provider string) (*Chat, error)
	AppendInteraction(sessionID string, payload InteractionPayload) (*Interaction, error)
	CountInteractions(sessionID string) (int64, error)
	FirstNInteractions(sessionID string, n int) ([]Interaction, error)
	SetTitle(chatID int64, title string) error
	SetGeneratedTitle(chatID int64, title string) error

	ListChats() ([]Chat, error)
	GetChat(id int64) (*Chat, error)
	DeleteChat(id int64) error
}

// LLMClient abstracts the colocated inference sidecar.
type LLMClient interface {
	ChatStream(ctx context.Context, req ChatStreamRequest) (<-chan ChatDelta, error)
	GenerateTitle(ctx context.Context, model string, context string) (string, error)
}

// ToolInvoker is the narrow surface the orchestrator needs from the server
// registry: forwarding a JSON-RPC body to a named server.
type ToolInvoker interface {
	Forward(ctx context.Context, serverName string, body []byte) ([]byte, error)
}

// RequestLogStore abstracts proxy request-log persistence.
type RequestLogStore interface {
	WriteLog(record RequestLogRecord) error
	GetLog(id string) (*RequestLogRecord, error)
	ListLogs(limit int) ([]RequestLogRecord, error)
	Stats() (RequestLogStats, error)
	ClearLogs() error
	UpsertExternalClient(name string, seenAt time.Time) error
	ListExternalClients() ([]ExternalClient, error)
}

// Broadcaster abstracts the WebSocket fan-out.
type Broadcaster interface {
	Broadcast(message any)
}
