// Package provider is the registration surface pluggable protocol
// providers use to attach message handlers to the Dispatcher under their
// own namespace (spec §2, GLOSSARY "Provider").
package provider

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/dispatcher"
	"github.com/morrigan/connection-provider/internal/record"
)

// Provider registers its message handlers with a Dispatcher under Name().
type Provider interface {
	Name() string
	Register(d *dispatcher.Dispatcher)
}

// RegisterAll registers every provider with d, in order.
func RegisterAll(d *dispatcher.Dispatcher, providers ...Provider) {
	for _, p := range providers {
		p.Register(d)
		slog.Info("provider registered", "provider", p.Name())
	}
}

// ClientState is the built-in "client.state" handler described in spec
// §4.10's last paragraph: it replies "ready" to an accepted promotion and
// logs-and-stops on rejection.
type ClientState struct{}

// NewClientState constructs the built-in client.state provider.
func NewClientState() *ClientState {
	return &ClientState{}
}

func (*ClientState) Name() string { return "client" }

func (c *ClientState) Register(d *dispatcher.Dispatcher) {
	d.Register("client", "state", c.handleState)
}

func (c *ClientState) handleState(msg json.RawMessage, sock *websocket.Conn, rec *record.Record, coreEnv interface{}) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(msg, &body); err != nil {
		slog.Debug("client.state: malformed body", "error", err)
		return
	}

	switch body.State {
	case "accepted":
		if err := sock.WriteJSON(map[string]string{"type": "client.state", "state": "ready"}); err != nil {
			slog.Warn("client.state: writing ready reply failed", "connectionId", rec.ID, "error", err)
		}
	case "rejected":
		slog.Warn("client.state rejected by peer, stopping", "connectionId", rec.ID)
	default:
		slog.Debug("client.state: unknown state", "state", body.State)
	}
}
