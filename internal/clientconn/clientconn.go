// Package clientconn is the remote counterpart to the server's Admission
// Controller: it obtains a connection token, opens the WebSocket, and
// dispatches its own connect/disconnect/message subscribers, optionally
// reconnecting with backoff (spec §4.10).
package clientconn

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 2 * time.Minute

	// DefaultReconnectIntervalSeconds is the fallback delay after a close,
	// distinct from the dial-failure backoff below (spec §4.10 step 5).
	DefaultReconnectIntervalSeconds = 30
)

var typePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+$`)

// Handler receives whatever arguments a Connector event defines.
type Handler func(args ...interface{})

// Options configures a Connector.
type Options struct {
	IdentityToken            string
	ReportURL                string
	AlwaysReconnect          bool
	ReconnectIntervalSeconds int
	HTTPClient               *http.Client
}

// Connector maintains a single WebSocket session to a Connection Provider.
type Connector struct {
	opts Options

	mu              sync.Mutex
	sock            *websocket.Conn
	alwaysReconnect bool

	connectSubs    []Handler
	disconnectSubs []Handler
	messageSubs    []Handler
}

// New constructs a Connector. It does not dial until Connect is called.
func New(opts Options) *Connector {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.ReconnectIntervalSeconds <= 0 {
		opts.ReconnectIntervalSeconds = DefaultReconnectIntervalSeconds
	}
	return &Connector{opts: opts, alwaysReconnect: opts.AlwaysReconnect}
}

// OnConnect registers a subscriber invoked with (socket) after a successful upgrade.
func (c *Connector) OnConnect(h Handler) { c.connectSubs = append(c.connectSubs, h) }

// OnDisconnect registers a subscriber invoked with (reason) when the session ends.
func (c *Connector) OnDisconnect(h Handler) { c.disconnectSubs = append(c.disconnectSubs, h) }

// OnMessage registers a subscriber invoked with (provider, message, raw) per inbound frame.
func (c *Connector) OnMessage(h Handler) { c.messageSubs = append(c.messageSubs, h) }

type tokenRequest struct {
	IDToken string `json:"idtoken"`
	TraceID string `json:"traceId"`
}

type tokenResponse struct {
	State string `json:"state"`
	Token string `json:"token"`
}

type tokenClaims struct {
	ReportURL string `json:"reportUrl"`
}

// Connect runs the full admission handshake and, on success, starts the
// read loop in the background (spec §4.10 steps 1-4). It returns once the
// socket is open or the attempt has definitively failed.
func (c *Connector) Connect(ctx context.Context, traceID string) error {
	token, wsURL, err := c.obtainToken(ctx, traceID)
	if err != nil {
		slog.Error("clientconn: token exchange failed", "traceId", traceID, "error", err)
		return err
	}

	header := http.Header{}
	header.Set("origin", token)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	sock, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		slog.Error("clientconn: websocket dial failed", "traceId", traceID, "error", err)
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()

	c.emit(c.connectSubs, sock)

	go c.readLoop(ctx, sock)
	return nil
}

func (c *Connector) obtainToken(ctx context.Context, traceID string) (token string, wsURL string, err error) {
	body, err := json.Marshal(tokenRequest{IDToken: c.opts.IdentityToken, TraceID: traceID})
	if err != nil {
		return "", "", fmt.Errorf("marshalling token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.ReportURL, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Authorization", c.opts.IdentityToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("requesting connection token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", "", fmt.Errorf("decoding token response: %w", err)
	}

	wsEndpoint, err := decodeReportURL(tr.Token)
	if err != nil {
		return "", "", fmt.Errorf("decoding connection token payload: %w", err)
	}

	return tr.Token, wsEndpoint, nil
}

// decodeReportURL extracts reportUrl from the middle (payload) segment of
// a JWT, tolerating missing base64url padding (spec §9: "implementations
// must tolerate missing padding").
func decodeReportURL(token string) (string, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return "", fmt.Errorf("malformed connection token: expected 3 segments, got %d", len(segments))
	}

	payload, err := decodeBase64URL(segments[1])
	if err != nil {
		return "", fmt.Errorf("base64url-decoding payload: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("unmarshalling payload claims: %w", err)
	}
	if claims.ReportURL == "" {
		return "", fmt.Errorf("token payload missing reportUrl")
	}
	return claims.ReportURL, nil
}

func decodeBase64URL(segment string) ([]byte, error) {
	if rem := len(segment) % 4; rem != 0 {
		segment += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(segment)
}

func (c *Connector) readLoop(ctx context.Context, sock *websocket.Conn) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			c.handleClose(ctx)
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Connector) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Debug("clientconn: dropping malformed frame", "error", err)
		return
	}
	if !typePattern.MatchString(envelope.Type) {
		slog.Debug("clientconn: dropping unroutable frame", "type", envelope.Type)
		return
	}
	provider, message := splitType(envelope.Type)
	c.emit(c.messageSubs, provider, message, raw)
}

func splitType(t string) (provider, message string) {
	provider, message, _ = strings.Cut(t, ".")
	return provider, message
}

func (c *Connector) handleClose(ctx context.Context) {
	c.mu.Lock()
	c.sock = nil
	reconnect := c.alwaysReconnect
	c.mu.Unlock()

	c.emit(c.disconnectSubs, "socket closed")

	if !reconnect {
		return
	}

	initialDelay := time.Duration(c.opts.ReconnectIntervalSeconds) * time.Second
	select {
	case <-ctx.Done():
		return
	case <-time.After(initialDelay):
	}

	// The configured interval governs the first attempt after a close; any
	// further attempt (the token exchange or the dial itself still failing)
	// backs off exponentially rather than hammering the control server.
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		stillReconnecting := c.alwaysReconnect
		c.mu.Unlock()
		if !stillReconnecting {
			return
		}

		if err := c.Connect(ctx, ""); err == nil {
			return
		} else {
			slog.Warn("clientconn: reconnect attempt failed", "attempt", attempt, "error", err)
		}

		delay := calculateBackoff(attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Send validates and writes message (spec §4.10 send()). message must
// carry a string "type" field once marshaled to JSON.
func (c *Connector) Send(message interface{}) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()

	if sock == nil {
		return fmt.Errorf("clientconn: no open socket")
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("clientconn: marshalling message: %w", err)
	}
	var probe struct {
		Type interface{} `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("clientconn: message must be a JSON object: %w", err)
	}
	if _, ok := probe.Type.(string); !ok {
		return fmt.Errorf("clientconn: message.type must be a string")
	}

	return sock.WriteMessage(websocket.TextMessage, raw)
}

// Disconnect stops any future reconnection, sends a final client.state
// frame if the socket is open, closes it, and synchronously invokes
// disconnect subscribers (spec §4.10 disconnect()).
func (c *Connector) Disconnect(reason string) {
	c.mu.Lock()
	c.alwaysReconnect = false
	sock := c.sock
	c.sock = nil
	c.mu.Unlock()

	if sock != nil {
		_ = sock.WriteMessage(websocket.TextMessage, mustMarshal(map[string]string{
			"type":  "client.state",
			"state": "stopped." + reason,
		}))
		sock.Close()
	}

	c.emit(c.disconnectSubs, reason)
}

func mustMarshal(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func (c *Connector) emit(subs []Handler, args ...interface{}) {
	for _, h := range subs {
		invoke(h, args)
	}
}

func invoke(h Handler, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("clientconn: subscriber panicked", "panic", r)
		}
	}()
	h(args...)
}

// calculateBackoff is the exponential delay handleClose waits between
// reconnect attempts after the first one (the token exchange or the dial
// still failing), capped at maxReconnectDelay.
func calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return baseReconnectDelay
	}
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseReconnectDelay
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}
