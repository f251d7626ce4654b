// Package service assembles the Connection Provider's components into one
// ConnectionService and exposes its HTTP/WebSocket surface (spec §4.1,
// §4.2, §4.6, §4.9, §6), replacing the teacher's module-scope globals with
// a single struct passed explicitly to every handler (spec §9: "Global
// mutable state → service instance").
package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/auth"
	"github.com/morrigan/connection-provider/internal/dispatcher"
	"github.com/morrigan/connection-provider/internal/eventbus"
	"github.com/morrigan/connection-provider/internal/heartbeat"
	"github.com/morrigan/connection-provider/internal/identity"
	"github.com/morrigan/connection-provider/internal/registry"
	"github.com/morrigan/connection-provider/internal/sender"
	"github.com/morrigan/connection-provider/internal/tokenbroker"
)

// Config carries the settings needed to assemble a ConnectionService beyond
// its component dependencies.
type Config struct {
	// ServerID is this process's instance id, stamped into every record it
	// promotes to active (spec §3 serverId).
	ServerID string
	// EndpointBase is the scheme+host clients use to reach this server; the
	// report URL minted at admission is "{EndpointBase}/{ProviderName}/connect".
	EndpointBase string
	// ProviderName names this connection provider's mount point.
	ProviderName string
	// APIToken gates the operator-facing routes (GET /, GET /:id,
	// POST /:id/send) the way the teacher's gateway token does.
	APIToken string
}

// ConnectionService wires every core component together (spec §2).
type ConnectionService struct {
	cfg Config

	registry  *registry.Registry
	broker    tokenbroker.Broker
	identity  identity.Provider
	dispatch  *dispatcher.Dispatcher
	bus       *eventbus.Bus
	sender    *sender.Sender
	heartbeat *heartbeat.Monitor
	upgrader  websocket.Upgrader
}

// New assembles a ConnectionService from its components.
func New(cfg Config, reg *registry.Registry, broker tokenbroker.Broker, idp identity.Provider, disp *dispatcher.Dispatcher, bus *eventbus.Bus, snd *sender.Sender, hb *heartbeat.Monitor) *ConnectionService {
	return &ConnectionService{
		cfg:       cfg,
		registry:  reg,
		broker:    broker,
		identity:  idp,
		dispatch:  disp,
		bus:       bus,
		sender:    snd,
		heartbeat: hb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Bus exposes the event bus so callers can register subscribers before
// Router is mounted (spec §9: "registered via a builder before start()").
func (s *ConnectionService) Bus() *eventbus.Bus {
	return s.bus
}

// Dispatcher exposes the dispatcher so protocol providers can register
// their handlers before Router is mounted.
func (s *ConnectionService) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatch
}

// Sender exposes the outbound-send API for in-process protocol handlers.
func (s *ConnectionService) Sender() *sender.Sender {
	return s.sender
}

// Router builds the mux.Router mounting every HTTP/WebSocket route under
// providerRoute (spec §6).
func (s *ConnectionService) Router(providerRoute string) http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	sub := r.PathPrefix(providerRoute).Subrouter()
	sub.HandleFunc("/", s.handleIssueToken).Methods(http.MethodPost)
	sub.HandleFunc("/connect", s.handleUpgrade).Methods(http.MethodGet)

	reads := sub.PathPrefix("").Subrouter()
	reads.Use(s.apiAuthMiddleware)
	reads.HandleFunc("/", s.handleListRecords).Methods(http.MethodGet)
	reads.HandleFunc("/{connectionId}", s.handleGetRecord).Methods(http.MethodGet)

	send := sub.PathPrefix("").Subrouter()
	send.Use(s.apiAuthMiddleware)
	send.Use(auth.Require(auth.CapabilityConnectionSend))
	send.HandleFunc("/{connectionId}/send", s.handleSend).Methods(http.MethodPost)

	return r
}

// apiAuthMiddleware is the operator-facing auth gate the teacher's
// authMiddleware implements as a single shared token; here it grants the
// full capability set on success, leaving per-route gating to
// auth.Require (spec §6 capability identifiers).
func (s *ConnectionService) apiAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			r = r.WithContext(auth.WithCapabilities(r.Context(), auth.NewSet(
				auth.CapabilityAPI, auth.CapabilityConnection, auth.CapabilityConnectionSend,
			)))
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] != s.cfg.APIToken {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"state":  "requestError",
				"reason": "invalid or missing API token",
			})
			return
		}

		r = r.WithContext(auth.WithCapabilities(r.Context(), auth.NewSet(
			auth.CapabilityAPI, auth.CapabilityConnection, auth.CapabilityConnectionSend,
		)))
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("service: encoding response failed", "error", err)
	}
}

func now() time.Time { return time.Now() }
