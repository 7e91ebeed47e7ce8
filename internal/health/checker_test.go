package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/archestra-ai/gateway/internal/mcp"
)

func TestNewChecker_DefaultsInterval(t *testing.T) {
	c := NewChecker(mcp.NewRegistry("docker"), 0)
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", c.interval)
	}
}

func TestChecker_RunAllMarksHealthyServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":"health-ping","result":{}}`))
	}))
	defer srv.Close()

	registry := mcp.NewRegistry("docker")
	registry.RegisterHTTP("weather", srv.URL, nil)

	c := NewChecker(registry, time.Hour)
	c.runAll(context.Background())

	statuses := c.Statuses()
	st, ok := statuses["weather"]
	if !ok {
		t.Fatal("expected a status for weather")
	}
	if !st.Healthy {
		t.Error("expected weather to be healthy")
	}
	if !c.IsHealthy() {
		t.Error("expected overall IsHealthy() = true")
	}
}

func TestChecker_RunAllMarksUnhealthyServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	registry := mcp.NewRegistry("docker")
	registry.RegisterHTTP("broken", srv.URL, nil)

	c := NewChecker(registry, time.Hour)
	c.runAll(context.Background())

	if c.IsHealthy() {
		t.Error("expected IsHealthy() = false when a server fails its probe")
	}
}

func TestChecker_IsHealthy_VacuouslyTrueWithNoServers(t *testing.T) {
	c := NewChecker(mcp.NewRegistry("docker"), time.Hour)
	if !c.IsHealthy() {
		t.Error("expected IsHealthy() = true with no registered servers")
	}
}

func TestChecker_RunStopsOnContextCancel(t *testing.T) {
	c := NewChecker(mcp.NewRegistry("docker"), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
