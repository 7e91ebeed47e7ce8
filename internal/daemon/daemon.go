package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/health"
	"github.com/archestra-ai/gateway/internal/httpapi"
	"github.com/archestra-ai/gateway/internal/infra/llmclient"
	_ "github.com/archestra-ai/gateway/internal/infra/metrics" // registers Prometheus collectors
	"github.com/archestra-ai/gateway/internal/infra/sqlite"
	"github.com/archestra-ai/gateway/internal/mcp"
)

var daemonLog = gwlog.For("daemon")

// Daemon is the gateway's runtime: it wires the registry, persistence,
// inference client, HTTP surface, and WebSocket hub together.
type Daemon struct {
	Config Config

	DB       *sqlite.DB
	Registry *mcp.Registry
	LLM      *llmclient.Client
	Hub      *httpapi.WSHub
	Health   *health.Checker
	Server   *httpapi.Server

	cancel context.CancelFunc
}

// New loads configuration from disk and builds a Daemon.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a Daemon from an already-loaded configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	gwlog.Configure(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxFiles)

	db, err := sqlite.Open(GatewayHome())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	registry := mcp.NewRegistryWithOptions(cfg.Gateway.ContainerRuntime, cfg.Gateway.ProxyAllowlist, cfg.Gateway.ResponseBufferSize)
	llm := llmclient.New(cfg.Sidecar.OllamaHost)
	hub := httpapi.NewWSHub()

	interval := parseDuration(cfg.Gateway.HealthCheckInterval, 30*time.Second)
	checker := health.NewChecker(registry, interval)

	srv := httpapi.NewServer(httpapi.Config{
		Registry:          registry,
		Chats:             db,
		RequestLogs:       db,
		LLM:               llm,
		Hub:               hub,
		MaxOrchestrations: cfg.Gateway.MaxOrchestrations,
		MetricsEnabled:    cfg.Telemetry.Prometheus,
		HealthFn: func() map[string]any {
			return map[string]any{
				"mcp_servers": checker.Statuses(),
				"healthy":     checker.IsHealthy(),
			}
		},
	})

	return &Daemon{
		Config:   cfg,
		DB:       db,
		Registry: registry,
		LLM:      llm,
		Hub:      hub,
		Health:   checker,
		Server:   srv,
	}, nil
}

// Serve starts the HTTP server and the registry health monitor, blocking
// until the context is cancelled or a termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long enough for a full SSE orchestration
		IdleTimeout:  2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	daemonLog.Info("gateway serving on http://%s", addr)
	if d.Config.Telemetry.Prometheus {
		daemonLog.Info("metrics exposed on http://%s/metrics", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases daemon resources outside of a Serve call, e.g. after a
// fatal startup error.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
