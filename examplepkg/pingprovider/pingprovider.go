// Package pingprovider is a minimal protocol provider demonstrating the
// Dispatcher contract end to end: it answers every "ping.request" frame
// with a "ping.reply" carrying the same nonce back, written directly to
// the handler's socket rather than through the Sender.
package pingprovider

import (
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/dispatcher"
	"github.com/morrigan/connection-provider/internal/record"
)

// Provider answers ping.request with ping.reply.
type Provider struct{}

// New constructs the ping provider.
func New() *Provider { return &Provider{} }

func (*Provider) Name() string { return "ping" }

// Register attaches the ping.request handler to d.
func (p *Provider) Register(d *dispatcher.Dispatcher) {
	d.Register("ping", "request", p.handleRequest)
}

type request struct {
	Nonce string `json:"nonce"`
}

func (p *Provider) handleRequest(msg json.RawMessage, sock *websocket.Conn, rec *record.Record, coreEnv interface{}) {
	var req request
	if err := json.Unmarshal(msg, &req); err != nil {
		slog.Debug("pingprovider: malformed ping.request", "error", err)
		return
	}

	reply := map[string]string{
		"type":  "ping.reply",
		"nonce": req.Nonce,
	}
	if err := sock.WriteJSON(reply); err != nil {
		slog.Warn("pingprovider: writing ping.reply failed", "connectionId", rec.ID, "error", err)
	}
}
