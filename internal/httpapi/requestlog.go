package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/internal/domain"
	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/infra/metrics"
	"github.com/archestra-ai/gateway/internal/mcp"
)

var proxyLog = gwlog.For("proxy")

// maxProxyBodyBytes is the upper bound on a forwarded JSON-RPC body.
const maxProxyBodyBytes = 10 * 1024 * 1024

// handleMCPProxy is the uniform front door for POST /mcp/{server_name}: it
// captures telemetry for every request, forwards the body through the
// registry, and never lets log persistence slow down the response.
func (s *Server) handleMCPProxy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := uuid.New().String()
	serverName := chi.URLParam(r, "server_name")

	sessionID := r.Header.Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	mcpSessionID := r.Header.Get("mcp-session-id")
	clientInfo := clientInfoFromHeaders(r)

	reqHeadersEarly := flattenHeaders(r.Header)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBodyBytes+1))
	if err != nil {
		s.finishProxyRequest(id, sessionID, mcpSessionID, serverName, clientInfo, "", reqHeadersEarly, nil, "", "", http.StatusBadRequest, err.Error(), start)
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxProxyBodyBytes {
		s.finishProxyRequest(id, sessionID, mcpSessionID, serverName, clientInfo, "", reqHeadersEarly, nil, "", "", http.StatusBadRequest, domain.ErrBodyTooLarge.Error(), start)
		writeJSONError(w, http.StatusBadRequest, domain.ErrBodyTooLarge.Error())
		return
	}
	if !utf8.Valid(body) {
		s.finishProxyRequest(id, sessionID, mcpSessionID, serverName, clientInfo, "", reqHeadersEarly, nil, "", "", http.StatusBadRequest, domain.ErrInvalidUTF8.Error(), start)
		writeJSONError(w, http.StatusBadRequest, domain.ErrInvalidUTF8.Error())
		return
	}

	method := shallowMethod(body)
	reqHeaders := reqHeadersEarly

	reply, err := s.registry.Forward(r.Context(), serverName, body)
	if err != nil {
		resp := mcp.InternalError(nil, fmt.Sprintf("MCP Proxy error: %s", err.Error()))
		envelope, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			envelope = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"MCP Proxy error"}}`)
		}
		s.finishProxyRequest(id, sessionID, mcpSessionID, serverName, clientInfo, method, reqHeaders, nil, string(body), string(envelope), http.StatusInternalServerError, err.Error(), start)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(envelope)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)

	s.finishProxyRequest(id, sessionID, mcpSessionID, serverName, clientInfo, method, reqHeaders, flattenHeaders(w.Header()), string(body), string(reply), http.StatusOK, "", start)
}

// finishProxyRequest fires the log write (and opportunistic external-client
// upsert) as background work so the HTTP response is never delayed by
// persistence.
func (s *Server) finishProxyRequest(id, sessionID, mcpSessionID, serverName string, clientInfo *domain.ClientInfo, method string, reqHeaders, respHeaders map[string]string, requestBody, responseBody string, status int, errText string, start time.Time) {
	record := domain.RequestLogRecord{
		ID:              id,
		SessionID:       sessionID,
		McpSessionID:    mcpSessionID,
		ServerName:      serverName,
		ClientInfo:      clientInfo,
		Method:          method,
		RequestHeaders:  reqHeaders,
		ResponseHeaders: respHeaders,
		RequestBody:     requestBody,
		ResponseBody:    responseBody,
		StatusCode:      status,
		Error:           errText,
		DurationMs:      time.Since(start).Milliseconds(),
		CreatedAt:       start,
	}

	metrics.ProxyRequestDuration.WithLabelValues(serverName, fmt.Sprintf("%d", status)).Observe(time.Since(start).Seconds())

	go func() {
		if err := s.requestLogs.WriteLog(record); err != nil {
			proxyLog.Error("failed to persist request log %s: %v", id, err)
		}
	}()

	if clientInfo != nil && clientInfo.Name != "" {
		go func() {
			if err := s.requestLogs.UpsertExternalClient(clientInfo.Name, time.Now()); err != nil {
				proxyLog.Error("failed to upsert external client %s: %v", clientInfo.Name, err)
			}
		}()
	}
}

func clientInfoFromHeaders(r *http.Request) *domain.ClientInfo {
	ci := domain.ClientInfo{
		UserAgent: r.Header.Get("user-agent"),
		Name:      r.Header.Get("x-client-name"),
		Version:   r.Header.Get("x-client-version"),
		Platform:  r.Header.Get("x-client-platform"),
	}
	if ci.UserAgent == "" && ci.Name == "" && ci.Version == "" && ci.Platform == "" {
		return nil
	}
	return &ci
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// shallowMethod extracts the top-level "method" field without validating
// the rest of the JSON-RPC envelope, since the proxy forwards malformed
// bodies as-is and only uses method for telemetry.
func shallowMethod(body []byte) string {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Method
}

// ─── Request log query/clear endpoints ──────────────────────────────────────

func (s *Server) handleListRequestLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.requestLogs.ListLogs(200)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleGetRequestLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log, err := s.requestLogs.GetLog(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if log == nil {
		writeJSONError(w, http.StatusNotFound, "request log not found")
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleRequestLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.requestLogs.Stats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearRequestLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.requestLogs.ClearLogs(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExternalClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.requestLogs.ListExternalClients()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, clients)
}
