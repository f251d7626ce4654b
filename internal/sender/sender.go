// Package sender delivers outbound messages to a specific connection,
// enforcing ownership and liveness before writing to the socket (spec
// §4.7). Unlike the implementation this is grounded on, a string message
// is written to the wire as-is rather than being JSON-encoded a second
// time: the historical "switch (typeof message)" fallthrough bug that
// double-encoded strings is not reproduced here.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/registry"
)

// Status is the outcome Send reports back to callers (mirrors the
// {state, reason} envelope used across the admission flow).
type Status string

const (
	StatusSent      Status = "sent"
	StatusNotFound  Status = "not_found"
	StatusNotOwned  Status = "not_owned"
	StatusNotAlive  Status = "not_alive"
	StatusWriteFail Status = "write_failed"
)

// Result is returned from Send.
type Result struct {
	Status Status
	Reason string
}

// Sender writes messages to connections this server process owns.
type Sender struct {
	registry *registry.Registry
}

// New constructs a Sender bound to a Registry.
func New(reg *registry.Registry) *Sender {
	return &Sender{registry: reg}
}

// Send delivers message to connectionId if this server owns a live,
// open, alive socket for it (spec §4.7 steps 1-4). message may be a
// string or []byte (written verbatim as a text frame) or any other
// JSON-marshalable value (marshaled once, then written as a text frame).
func (s *Sender) Send(ctx context.Context, connectionID string, message interface{}) Result {
	rec, err := s.registry.FindByID(ctx, connectionID)
	if err != nil {
		return Result{Status: StatusNotFound, Reason: "No such connection."}
	}
	if !rec.Alive || !rec.Open {
		return Result{Status: StatusNotAlive, Reason: "Connection closed or client not live."}
	}
	if rec.ServerID != s.registry.ServerID() {
		return Result{Status: StatusNotOwned, Reason: fmt.Sprintf("Connection '%s' does not belong to this server ('%s').", connectionID, s.registry.ServerID())}
	}

	sock, ok := s.registry.Socket(connectionID)
	if !ok {
		return Result{Status: StatusNotFound, Reason: "no local socket for connection"}
	}

	payload, err := encode(message)
	if err != nil {
		slog.Error("sender: encoding message failed", "connectionId", connectionID, "error", err)
		return Result{Status: StatusWriteFail, Reason: "could not encode message"}
	}

	if err := sock.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Warn("sender: write failed", "connectionId", connectionID, "error", err)
		return Result{Status: StatusWriteFail, Reason: "write failed"}
	}
	return Result{Status: StatusSent}
}

func encode(message interface{}) ([]byte, error) {
	if s, ok := message.(string); ok {
		return []byte(s), nil
	}
	if b, ok := message.([]byte); ok {
		return b, nil
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}
	return raw, nil
}
