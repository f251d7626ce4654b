// Package heartbeat runs the per-connection liveness monitor: a repeating
// ping with a two-state (alive/not alive) Bernoulli liveness detector. It
// never disconnects a connection on a missed heartbeat — that decision is
// left entirely to the Lifecycle Manager or an external supervisor (spec
// §4.4).
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/record"
	"github.com/morrigan/connection-provider/internal/registry"
)

// Interval is the repeating ping period (spec §5: 30 seconds).
const Interval = 30 * time.Second

// Monitor runs one ticker per live connection, sending pings and
// persisting the alive flag on each tick and on pong receipt.
type Monitor struct {
	registry *registry.Registry
	interval time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Monitor bound to a Registry. interval of zero uses Interval.
func New(reg *registry.Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = Interval
	}
	return &Monitor{
		registry: reg,
		interval: interval,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins the repeating ping loop for one connection (spec §4.4 step 1).
// It runs until Stop is called for this connection id or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, rec *record.Record, sock *websocket.Conn) {
	loopCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if existing, ok := m.cancels[rec.ID]; ok {
		existing()
	}
	m.cancels[rec.ID] = cancel
	m.mu.Unlock()

	go m.loop(loopCtx, rec.ID, sock)
}

// Stop ends the ping loop for a connection id (spec §4.4 step 4, on close).
func (m *Monitor) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

func (m *Monitor) loop(ctx context.Context, id string, sock *websocket.Conn) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, id, sock)
		}
	}
}

// tick sends one ping and immediately marks the connection's liveness flag
// false for this interval, ahead of any pong reply (spec §4.4 step 2): a
// connection is only "alive" for an interval if a pong lands inside it.
func (m *Monitor) tick(ctx context.Context, id string, sock *websocket.Conn) {
	rec, err := m.registry.FindByID(ctx, id)
	if err != nil {
		slog.Debug("heartbeat: record vanished, stopping monitor", "connectionId", id, "error", err)
		m.Stop(id)
		return
	}
	if !rec.Open {
		m.Stop(id)
		return
	}

	wasAlive := rec.Alive
	rec.MarkHeartbeatMissed()
	if err := m.registry.Persist(ctx, rec); err != nil {
		slog.Error("heartbeat: persisting missed-tick state failed", "connectionId", id, "error", err)
	}
	if wasAlive {
		slog.Debug("heartbeat: awaiting pong", "connectionId", id)
	} else {
		slog.Warn("heartbeat: missed previous pong", "connectionId", id)
	}

	deadline := time.Now().Add(m.interval / 2)
	if err := sock.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		slog.Debug("heartbeat: ping write failed", "connectionId", id, "error", err)
	}
}

// Pong records a received pong against a connection's record (spec §4.4
// step 3). Callers wire this into the socket's pong handler.
func (m *Monitor) Pong(ctx context.Context, id string) {
	rec, err := m.registry.FindByID(ctx, id)
	if err != nil {
		return
	}
	rec.MarkPong(time.Now())
	if err := m.registry.Persist(ctx, rec); err != nil {
		slog.Error("heartbeat: persisting pong failed", "connectionId", id, "error", err)
	}
}
