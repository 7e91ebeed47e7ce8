package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// nonFlushingWriter implements http.ResponseWriter but deliberately not
// http.Flusher, to exercise newSSEWriter's capability check.
type nonFlushingWriter struct{}

func (nonFlushingWriter) Header() http.Header        { return http.Header{} }
func (nonFlushingWriter) Write(b []byte) (int, error) { return len(b), nil }
func (nonFlushingWriter) WriteHeader(int)             {}

func TestNewSSEWriter_SetsStreamingHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := newSSEWriter(w)
	if err != nil {
		t.Fatalf("newSSEWriter() error: %v", err)
	}
	if sse == nil {
		t.Fatal("expected non-nil writer")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestSSEWriter_EventFrames(t *testing.T) {
	w := httptest.NewRecorder()
	sse, _ := newSSEWriter(w)

	sse.textStart("text-main")
	sse.textDelta("text-main", "hello")
	sse.textEnd("text-main")
	sse.toolInputStart("call-1", "Weather_get")
	sse.toolInputAvailable("call-1", "Weather_get", map[string]any{"city": "nyc"})
	sse.toolOutputAvailable("call-1", map[string]any{"content": "sunny", "isError": false})
	sse.error("boom")
	sse.done()

	body := w.Body.String()
	for _, want := range []string{
		`"type":"text-start"`,
		`"type":"text-delta"`,
		`"delta":"hello"`,
		`"type":"text-end"`,
		`"type":"tool-input-start"`,
		`"toolCallId":"call-1"`,
		`"type":"tool-input-available"`,
		`"type":"tool-output-available"`,
		`"type":"error"`,
		`"errorText":"boom"`,
		"[DONE]",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q\nfull body: %s", want, body)
		}
	}
}

func TestNewSSEWriter_RejectsNonFlusher(t *testing.T) {
	if _, err := newSSEWriter(nonFlushingWriter{}); err == nil {
		t.Fatal("expected error when ResponseWriter cannot be flushed")
	}
}
