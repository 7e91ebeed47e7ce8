package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTransport_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("X-Api-Key = %q, want secret", r.Header.Get("X-Api-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, map[string]string{"X-Api-Key": "secret"})
	out, err := transport.Send(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(out) == 0 {
		t.Error("expected non-empty response body")
	}
}

func TestHTTPTransport_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, nil)
	if _, err := transport.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHTTPTransport_Close(t *testing.T) {
	transport := NewHTTPTransport("http://example.invalid", nil)
	if err := transport.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
