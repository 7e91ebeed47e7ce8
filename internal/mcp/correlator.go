package mcp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/archestra-ai/gateway/internal/domain"
	"github.com/archestra-ai/gateway/internal/gwlog"
	"github.com/archestra-ai/gateway/internal/infra/metrics"
)

var logger = gwlog.For("correlator")

// pollInterval is how often a waiting Call re-checks the buffer for its
// reply. The buffer is written to by a single stdout-reading goroutine per
// server, so polling avoids a fan-out of per-request channels that the
// reader would need to know about in advance.
const pollInterval = 10 * time.Millisecond

// callTimeout bounds how long Call waits for a matching reply before
// surfacing domain.ErrCorrelatorTimeout.
const callTimeout = 30 * time.Second

// logInterval throttles the "still waiting" status line so a slow tool
// doesn't spam the log once per poll tick.
const logInterval = 5 * time.Second

// Correlator matches JSON-RPC replies arriving on a server's shared stdout
// stream back to the caller that issued the matching request id. It holds a
// capped FIFO of unclaimed lines so a reply can arrive slightly before the
// caller starts waiting for it without being lost.
type Correlator struct {
	serverName string

	mu      sync.Mutex
	buf     []domain.BufferEntry
	discard int

	cap int
}

// NewCorrelator builds a Correlator for one server instance with the given
// buffer capacity (domain.ResponseBufferCapacity in production).
func NewCorrelator(serverName string, capacity int) *Correlator {
	return &Correlator{serverName: serverName, cap: capacity}
}

// Push is called by the stdout-reading goroutine for every line read off
// the container. It appends to the FIFO, evicting the oldest entry first
// when the buffer is already at capacity.
func (c *Correlator) Push(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.cap {
		c.buf = c.buf[1:]
		c.discard++
		metrics.CorrelatorDiscards.WithLabelValues(c.serverName).Inc()
	}
	c.buf = append(c.buf, domain.BufferEntry{Line: line, ArrivedAt: time.Now()})
}

// Call writes req (already framed by the caller) and polls the buffer for
// a line whose "id" matches until it finds one, the context-free timeout
// elapses, or the caller is a notification (no id, no reply expected).
func (c *Correlator) Call(id any, write func() error) ([]byte, error) {
	if err := write(); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, nil
	}

	deadline := time.Now().Add(callTimeout)
	lastLog := time.Now()
	for {
		if line, ok := c.take(id); ok {
			return line, nil
		}
		if time.Now().After(deadline) {
			return nil, domain.ErrCorrelatorTimeout
		}
		if time.Since(lastLog) >= logInterval {
			logger.Warn("still waiting for response from %s (id=%v, buffered=%d, discarded=%d)", c.serverName, id, c.Depth(), c.Discards())
			lastLog = time.Now()
		}
		time.Sleep(pollInterval)
	}
}

// take scans the buffer for an entry whose JSON-RPC id matches and, if
// found, removes it and returns its raw bytes.
func (c *Correlator) take(id any) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.buf {
		gotID, ok := ExtractID([]byte(entry.Line))
		if !ok || !idsEqual(gotID, id) {
			continue
		}
		c.buf = append(c.buf[:i], c.buf[i+1:]...)
		return []byte(entry.Line), true
	}
	return nil, false
}

// Discards reports how many buffered lines were evicted before any caller
// claimed them; Call's periodic status log includes it.
func (c *Correlator) Discards() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discard
}

// Depth reports the current number of unclaimed buffered lines.
func (c *Correlator) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// idsEqual compares JSON-RPC ids after normalizing through JSON so that a
// numeric id decoded as float64 still matches an int one sent by the caller.
func idsEqual(a, b any) bool {
	if a == b {
		return true
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}
