// Package registry is the single entry point for connection state: it
// read/write-throughs the persistent Store for the authoritative Record
// and holds the non-serializable, process-local side tables (live sockets)
// that must never be persisted (spec §3, §4.5).
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/record"
	"github.com/morrigan/connection-provider/internal/store"
)

// Registry combines a Store with a local socket table. A given process
// only ever holds sockets for connections it owns (ServerID == serverID);
// records owned by other server instances are visible through the Store
// but never appear in the local socket table.
type Registry struct {
	store    store.Store
	serverID string

	mu      sync.RWMutex
	sockets map[string]*websocket.Conn // recordID -> live socket, local only
}

// New constructs a Registry bound to one server instance's identity.
func New(s store.Store, serverID string) *Registry {
	return &Registry{
		store:    s,
		serverID: serverID,
		sockets:  make(map[string]*websocket.Conn),
	}
}

// ServerID reports the identity this Registry's process owns sockets under.
func (r *Registry) ServerID() string {
	return r.serverID
}

// Issue persists a freshly minted issued-phase record (spec §4.1 step 4).
func (r *Registry) Issue(ctx context.Context, rec *record.Record) error {
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry: issuing record %s: %w", rec.ID, err)
	}
	return nil
}

// FindByID looks up a record by id regardless of owning server.
func (r *Registry) FindByID(ctx context.Context, id string) (*record.Record, error) {
	rec, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByClientID looks up the most recently written record for a client,
// whether or not it is still open.
func (r *Registry) FindByClientID(ctx context.Context, clientID string) (*record.Record, error) {
	return r.store.FindByClientID(ctx, clientID)
}

// FindAll returns every record, regardless of owning server (spec §4.9 GET /).
func (r *Registry) FindAll(ctx context.Context) ([]*record.Record, error) {
	return r.store.FindAll(ctx)
}

// OpenSlot reports whether clientID currently holds the single-active-
// session slot (I1): an open record that is either connected or whose
// issuance timeout has not yet elapsed.
func (r *Registry) OpenSlot(ctx context.Context, clientID string, now time.Time) (*record.Record, bool, error) {
	rec, err := r.store.FindByClientID(ctx, clientID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if rec.HoldsOpenSlot(now) {
		return rec, true, nil
	}
	return rec, false, nil
}

// Promote transitions rec to active ownership by this server and persists
// it, then registers the live socket locally (spec §4.2 step 3).
func (r *Registry) Promote(ctx context.Context, rec *record.Record, clientAddress string, sock *websocket.Conn, now time.Time) error {
	rec.Promote(r.serverID, clientAddress, now)
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry: promoting record %s: %w", rec.ID, err)
	}
	r.registerSocket(rec.ID, sock)
	return nil
}

// Persist writes back whatever in-memory mutations the caller already
// applied to rec (heartbeat state, pong timestamps, ...).
func (r *Registry) Persist(ctx context.Context, rec *record.Record) error {
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry: persisting record %s: %w", rec.ID, err)
	}
	return nil
}

// Close marks rec closed, persists it, and drops the local socket entry
// (spec §4.6 step 3). closedByServer controls whether Disconnected is
// stamped: a server-initiated close stamps it, a client-initiated close
// leaves it for the disconnect handler's own bookkeeping.
func (r *Registry) Close(ctx context.Context, rec *record.Record, closedByServer bool, now time.Time) error {
	rec.Close(closedByServer, now)
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("registry: closing record %s: %w", rec.ID, err)
	}
	r.unregisterSocket(rec.ID)
	return nil
}

// DeleteByID removes a record outright (spec §4.1 step 3: a stale,
// never-upgraded record is deleted rather than merely closed).
func (r *Registry) DeleteByID(ctx context.Context, id string) error {
	if err := r.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("registry: deleting record %s: %w", id, err)
	}
	r.unregisterSocket(id)
	return nil
}

// Socket returns the live socket for a connection this process owns, if any.
func (r *Registry) Socket(id string) (*websocket.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sock, ok := r.sockets[id]
	return sock, ok
}

// LocalConnections returns the ids of every connection this process
// currently owns a live socket for (used by shutdown to close them all).
func (r *Registry) LocalConnections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sockets))
	for id := range r.sockets {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) registerSocket(id string, sock *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[id] = sock
}

func (r *Registry) unregisterSocket(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, id)
}

// IssueToken persists the token record paired with a freshly minted
// connection token (spec §3 I5).
func (r *Registry) IssueToken(ctx context.Context, t *store.TokenRecord) error {
	if err := r.store.UpsertToken(ctx, t); err != nil {
		return fmt.Errorf("registry: issuing token %s: %w", t.ID, err)
	}
	return nil
}

// FindToken looks up a token record by id.
func (r *Registry) FindToken(ctx context.Context, id string) (*store.TokenRecord, error) {
	return r.store.FindToken(ctx, id)
}

// DeleteToken removes a consumed or expired token record.
func (r *Registry) DeleteToken(ctx context.Context, id string) error {
	if err := r.store.DeleteToken(ctx, id); err != nil {
		return fmt.Errorf("registry: deleting token %s: %w", id, err)
	}
	return nil
}
