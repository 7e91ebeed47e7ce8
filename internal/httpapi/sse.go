package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter frames typed chat-stream events as Server-Sent Events: each
// event is one "data: {...}\n\n" line, flushed immediately so the client
// sees tokens as they arrive rather than buffered.
type sseWriter struct {
	w       *bufio.Writer
	flusher http.Flusher
}

// newSSEWriter sets the streaming headers and wraps w for event writes. It
// returns an error if the underlying ResponseWriter cannot be flushed
// incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by this response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: bufio.NewWriter(w), flusher: flusher}, nil
}

func (s *sseWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// ─── Typed event frames ─────────────────────────────────────────────────────
// One struct per orchestrator event kind; Type is the discriminant the
// frontend switches on.

type textStartEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type textDeltaEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type textEndEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type toolInputStartEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type toolInputAvailableEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Input      any    `json:"input"`
}

type toolOutputAvailableEvent struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	Output     any    `json:"output"`
}

type errorEvent struct {
	Type      string `json:"type"`
	ErrorText string `json:"errorText"`
}

func (s *sseWriter) textStart(id string) error { return s.send(textStartEvent{"text-start", id}) }

func (s *sseWriter) textDelta(id, delta string) error {
	return s.send(textDeltaEvent{"text-delta", id, delta})
}

func (s *sseWriter) textEnd(id string) error { return s.send(textEndEvent{"text-end", id}) }

func (s *sseWriter) toolInputStart(toolCallID, toolName string) error {
	return s.send(toolInputStartEvent{"tool-input-start", toolCallID, toolName})
}

func (s *sseWriter) toolInputAvailable(toolCallID, toolName string, input any) error {
	return s.send(toolInputAvailableEvent{"tool-input-available", toolCallID, toolName, input})
}

func (s *sseWriter) toolOutputAvailable(toolCallID string, output any) error {
	return s.send(toolOutputAvailableEvent{"tool-output-available", toolCallID, output})
}

func (s *sseWriter) error(text string) error {
	return s.send(errorEvent{"error", text})
}
