// Package httpapi is the gateway's HTTP surface: the MCP proxy, the
// chat-stream orchestrator, chat CRUD, request-log queries, and the
// WebSocket broadcast feed, all mounted on one chi router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/archestra-ai/gateway/internal/domain"
	"github.com/archestra-ai/gateway/internal/mcp"
)

// Server wires the gateway's domain collaborators into chi handlers.
type Server struct {
	registry    *mcp.Registry
	chats       domain.ChatStore
	requestLogs domain.RequestLogStore
	llm         domain.LLMClient
	hub         *WSHub

	sem chan struct{} // orchestration concurrency bound, capacity K

	metricsEnabled bool
	healthFn       func() map[string]any
}

// Config carries the collaborators and limits Server needs.
type Config struct {
	Registry          *mcp.Registry
	Chats             domain.ChatStore
	RequestLogs       domain.RequestLogStore
	LLM               domain.LLMClient
	Hub               *WSHub
	MaxOrchestrations int
	MetricsEnabled    bool
	HealthFn          func() map[string]any
}

// NewServer builds a Server from cfg, defaulting MaxOrchestrations to the
// K=10 concurrency bound when unset.
func NewServer(cfg Config) *Server {
	k := cfg.MaxOrchestrations
	if k <= 0 {
		k = 10
	}
	return &Server{
		registry:       cfg.Registry,
		chats:          cfg.Chats,
		requestLogs:    cfg.RequestLogs,
		llm:            cfg.LLM,
		hub:            cfg.Hub,
		sem:            make(chan struct{}, k),
		metricsEnabled: cfg.MetricsEnabled,
		healthFn:       cfg.HealthFn,
	}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Post("/mcp/{server_name}", s.handleMCPProxy)
	r.Post("/llm/ollama/stream", s.handleChatStream)

	r.Route("/chat", func(r chi.Router) {
		r.Get("/", s.handleListChats)
		r.Post("/", s.handleCreateChat)
		r.Get("/{id}", s.handleGetChat)
		r.Delete("/{id}", s.handleDeleteChat)
		r.Patch("/{id}", s.handleRenameChat)
	})

	r.Route("/mcp_request_log", func(r chi.Router) {
		r.Get("/", s.handleListRequestLogs)
		r.Get("/stats", s.handleRequestLogStats)
		r.Get("/{id}", s.handleGetRequestLog)
		r.Delete("/", s.handleClearRequestLogs)
	})

	r.Get("/external_mcp_clients", s.handleListExternalClients)

	r.Get("/ws", s.handleWebSocket)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.healthFn != nil {
		for k, v := range s.healthFn() {
			status[k] = v
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// corsMiddleware applies permissive local-development CORS headers, per §6.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, session_id, mcp-session-id, x-client-name, x-client-version, x-client-platform")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSONBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
