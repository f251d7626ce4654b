// Package dispatcher parses inbound WebSocket text frames and routes them
// to registered provider handlers by the {provider}.{message} discriminator
// in the envelope's "type" field (spec §4.3).
package dispatcher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/record"
)

// typePattern validates "{provider}.{message}" where provider has no dot
// and message may contain dots (spec §4.3 step 3). The provider/message
// split itself is done with strings.Cut on the first dot, matching the
// client connector's splitType, so both sides of the wire protocol agree
// on routing for multi-dot message names.
var typePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+$`)

// Envelope is the parsed wire message (spec §6 wire message envelope).
type Envelope struct {
	Type    string
	Raw     json.RawMessage
	Message string // the message part of Type, after the first dot
}

// Handler processes one message. coreEnv carries whatever core services a
// handler may need (sender, registry, ...); its shape is left to callers.
type Handler func(msg json.RawMessage, socket *websocket.Conn, rec *record.Record, coreEnv interface{})

// Dispatcher is a stateless {provider -> {message -> Handler}} routing
// table. Register takes no lock, so all registration happens before the
// first Dispatch; after that, concurrent Dispatch calls only read the
// table. Distinct connections dispatch independently and frames from a
// single socket are handled in arrival order by the caller (the dispatcher
// itself does no buffering).
type Dispatcher struct {
	providers map[string]map[string]Handler
}

// New constructs an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{providers: make(map[string]map[string]Handler)}
}

// Register adds a handler for {provider}.{message}. A later call for the
// same pair overwrites the earlier one.
func (d *Dispatcher) Register(provider, message string, h Handler) {
	bucket, ok := d.providers[provider]
	if !ok {
		bucket = make(map[string]Handler)
		d.providers[provider] = bucket
	}
	bucket[message] = h
}

// Dispatch parses one inbound text frame and invokes the resolved handler.
// Parse failures, unmatched types, and unknown provider/message pairs are
// logged and dropped (never returned as errors) per spec §4.3 steps 1-4.
// A handler panic is recovered, logged with the message subname, and
// swallowed so the connection survives (step 5).
func (d *Dispatcher) Dispatch(raw []byte, socket *websocket.Conn, rec *record.Record, coreEnv interface{}) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Debug("dispatcher: dropping malformed frame", "error", err)
		return
	}
	if envelope.Type == "" {
		slog.Debug("dispatcher: dropping frame with missing type")
		return
	}

	if !typePattern.MatchString(envelope.Type) {
		slog.Debug("dispatcher: dropping frame with unroutable type", "type", envelope.Type)
		return
	}
	provider, message, _ := strings.Cut(envelope.Type, ".")

	bucket, ok := d.providers[provider]
	if !ok {
		slog.Debug("dispatcher: no such provider", "provider", provider)
		return
	}
	handler, ok := bucket[message]
	if !ok {
		slog.Debug("dispatcher: no such message handler", "provider", provider, "message", message)
		return
	}

	d.invoke(handler, message, raw, socket, rec, coreEnv)
}

func (d *Dispatcher) invoke(h Handler, message string, raw []byte, socket *websocket.Conn, rec *record.Record, coreEnv interface{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher: handler panicked", "message", message, "panic", fmt.Sprint(r))
		}
	}()
	h(raw, socket, rec, coreEnv)
}
