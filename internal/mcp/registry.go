package mcp

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/archestra-ai/gateway/internal/domain"
	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/infra/metrics"
)

var registryLog = gwlog.For("registry")

// slugPattern matches each run of characters other than lowercase letters
// and digits; Slug replaces every such run with a single hyphen.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives the "mcp-server-<name>" container name from a server name.
func Slug(name string) string {
	lower := strings.ToLower(name)
	hyphenated := slugPattern.ReplaceAllString(lower, "-")
	return "mcp-server-" + strings.Trim(hyphenated, "-")
}

// entry pairs a registered server's public record with its live transport.
type entry struct {
	instance  *domain.ServerInstance
	transport Transport
}

// defaultProxyAllowlist is the SSRF guard's permitted proxy-target hosts
// when the caller doesn't supply its own via configuration (§9).
var defaultProxyAllowlist = []string{"localhost", "127.0.0.1", "::1"}

// Registry is the single source of truth for which MCP servers are running
// (C3). Every mutation (StartContainer, RegisterHTTP, Stop, MarkHealthCheck)
// takes the write lock so the map is never observed half-updated; Forward
// only needs a read lock since it never changes membership.
type Registry struct {
	runtime        string // container runtime binary, e.g. "docker"
	allowlist      []string
	bufferCapacity int

	mu      sync.RWMutex
	servers map[string]*entry
}

// NewRegistry builds an empty Registry bound to the given container
// runtime binary (stored as given and looked up on PATH only when a
// container is spawned), using the default loopback-only proxy allowlist and response buffer
// capacity.
func NewRegistry(runtime string) *Registry {
	return NewRegistryWithOptions(runtime, nil, 0)
}

// NewRegistryWithOptions builds a Registry with an explicit proxy-target
// allowlist and response buffer capacity, as read from GatewayConfig. A nil
// or empty allowlist falls back to defaultProxyAllowlist; a non-positive
// bufferCapacity falls back to domain.ResponseBufferCapacity.
func NewRegistryWithOptions(runtime string, allowlist []string, bufferCapacity int) *Registry {
	if len(allowlist) == 0 {
		allowlist = defaultProxyAllowlist
	}
	if bufferCapacity <= 0 {
		bufferCapacity = domain.ResponseBufferCapacity
	}
	return &Registry{
		runtime:        runtime,
		allowlist:      allowlist,
		bufferCapacity: bufferCapacity,
		servers:        make(map[string]*entry),
	}
}

// validateProxyTarget enforces the SSRF guard on HTTP-transport proxy
// targets: scheme restricted to http/https, host restricted to the
// configured loopback allowlist, and no path traversal — grounded on the
// original implementation's validate_proxy_target.
func validateProxyTarget(rawURL string, allowlist []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidProxyTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not permitted", domain.ErrInvalidProxyTarget, u.Scheme)
	}
	host := u.Hostname()
	allowed := false
	for _, h := range allowlist {
		if strings.EqualFold(host, h) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: host %q is not in the allowlist", domain.ErrInvalidProxyTarget, host)
	}
	if strings.Contains(u.Path, "..") || strings.Contains(u.Path, "\\") {
		return fmt.Errorf("%w: path %q contains traversal characters", domain.ErrInvalidProxyTarget, u.Path)
	}
	return nil
}

// StartContainer spawns a new container-backed server under name. It
// returns domain.ErrServerExists if a server by that name is already
// registered, running or not.
func (r *Registry) StartContainer(ctx context.Context, name, image, command string, args []string, env map[string]string) (*domain.ServerInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[name]; exists {
		metrics.RegistryOperations.WithLabelValues("start", "exists").Inc()
		return nil, domain.ErrServerExists
	}

	slug := Slug(name)
	transport, err := SpawnContainer(ctx, r.runtime, slug, image, env, command, args, r.bufferCapacity)
	if err != nil {
		metrics.RegistryOperations.WithLabelValues("start", "error").Inc()
		return nil, err
	}

	inst := &domain.ServerInstance{
		Name:    name,
		Command: command,
		Args:    args,
		Env:     env,
		Transport: domain.TransportDescriptor{
			Kind:          domain.TransportContainer,
			ContainerName: slug,
		},
		Running: true,
	}
	r.servers[name] = &entry{instance: inst, transport: transport}
	metrics.RegistryOperations.WithLabelValues("start", "ok").Inc()
	registryLog.Info("server %s started (container %s)", name, slug)
	return inst, nil
}

// RegisterHTTP registers an already-reachable HTTP-transport MCP server
// (e.g. a sidecar started outside the gateway's own supervision). The
// target URL must pass validateProxyTarget's SSRF allowlist check.
func (r *Registry) RegisterHTTP(name, url string, headers map[string]string) (*domain.ServerInstance, error) {
	if err := validateProxyTarget(url, r.allowlist); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[name]; exists {
		return nil, domain.ErrServerExists
	}

	inst := &domain.ServerInstance{
		Name: name,
		Transport: domain.TransportDescriptor{
			Kind:    domain.TransportHTTP,
			URL:     url,
			Headers: headers,
		},
		Running: true,
	}
	r.servers[name] = &entry{instance: inst, transport: NewHTTPTransport(url, headers)}
	registryLog.Info("server %s registered (url %s)", name, url)
	return inst, nil
}

// Stop removes name from the registry and tears its transport down. The
// teardown itself runs outside the write lock so a slow container kill
// doesn't stall unrelated Start/Forward calls.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	e, ok := r.servers[name]
	if !ok {
		r.mu.Unlock()
		metrics.RegistryOperations.WithLabelValues("stop", "not_found").Inc()
		return domain.ErrServerNotFound
	}
	delete(r.servers, name)
	r.mu.Unlock()

	registryLog.Info("server %s stopping", name)
	err := e.transport.Close()
	if err != nil {
		metrics.RegistryOperations.WithLabelValues("stop", "error").Inc()
	} else {
		metrics.RegistryOperations.WithLabelValues("stop", "ok").Inc()
	}
	return err
}

// Forward sends body to the named server and returns its reply. Container
// servers reply asynchronously through their Correlator; HTTP servers reply
// synchronously from Send itself.
func (r *Registry) Forward(ctx context.Context, name string, body []byte) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.servers[name]
	r.mu.RUnlock()
	if !ok {
		metrics.RegistryOperations.WithLabelValues("forward", "not_found").Inc()
		return nil, fmt.Errorf("%w: %s (available: %s)", domain.ErrServerNotFound, name, strings.Join(r.Names(), ", "))
	}

	if ct, isContainer := e.transport.(*ContainerTransport); isContainer {
		id, _ := ExtractID(body)
		reply, err := ct.Correlator().Call(id, func() error {
			_, err := ct.Send(ctx, body)
			return err
		})
		if err != nil {
			metrics.RegistryOperations.WithLabelValues("forward", "error").Inc()
		} else {
			metrics.RegistryOperations.WithLabelValues("forward", "ok").Inc()
		}
		metrics.ResponseBufferDepth.WithLabelValues(name).Set(float64(ct.Correlator().Depth()))
		return reply, err
	}
	reply, err := e.transport.Send(ctx, body)
	if err != nil {
		metrics.RegistryOperations.WithLabelValues("forward", "error").Inc()
	} else {
		metrics.RegistryOperations.WithLabelValues("forward", "ok").Inc()
	}
	return reply, err
}

// Names returns the currently registered server names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instances returns a snapshot of every registered server's public record.
func (r *Registry) Instances() []domain.ServerInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ServerInstance, 0, len(r.servers))
	for _, e := range r.servers {
		out = append(out, *e.instance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the instance record for name, for the health monitor to stamp
// LastHealthCheck against.
func (r *Registry) Get(name string) (*domain.ServerInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.servers[name]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Probe issues a lightweight liveness check against name: a process-alive
// check for container transports, or a JSON-RPC ping for HTTP transports.
// It never tears the instance down on failure; that is left to the caller.
func (r *Registry) Probe(ctx context.Context, name string) bool {
	r.mu.RLock()
	e, ok := r.servers[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if ct, isContainer := e.transport.(*ContainerTransport); isContainer {
		return ct.Alive()
	}

	_, err := e.transport.Send(ctx, []byte(`{"jsonrpc":"2.0","id":"health-ping","method":"ping"}`))
	return err == nil
}

// MarkHealthCheck stamps the instance's LastHealthCheck time and running
// state under lock so the health monitor doesn't race Forward/Stop.
func (r *Registry) MarkHealthCheck(name string, checkedAt time.Time, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.servers[name]
	if !ok {
		return
	}
	e.instance.LastHealthCheck = checkedAt
	e.instance.Running = running
}
