// Package identity defines the external Identity provider contract (spec
// §1): verifying a client's identity token and describing a client by id.
// The Connection Provider never implements identity itself; Dev is a fake
// suitable for local development and tests.
package identity

import (
	"context"
	"strings"
	"sync"
)

// VerifyResult is the outcome of VerifyIdentity.
type VerifyResult struct {
	OK       bool
	ClientID string
	Reason   string
}

// Client is the descriptor GetClient returns for a known client id.
type Client struct {
	ID    string
	State string
}

// Provider is the external Identity provider contract.
type Provider interface {
	VerifyIdentity(ctx context.Context, token string) (VerifyResult, error)
	GetClient(ctx context.Context, clientID string) (*Client, bool, error)

	// UpdateState sets a known client's advisory state (spec §4.6 step 4:
	// cleanup resets it to "unknown" unless it already starts with
	// "stopped"). A call for an unknown clientID is a no-op.
	UpdateState(ctx context.Context, clientID, state string) error
}

// Dev is an in-memory Provider for local development and tests: any token
// of the form "client:<id>" verifies successfully as <id>.
type Dev struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewDev constructs an empty Dev provider.
func NewDev() *Dev {
	return &Dev{clients: make(map[string]*Client)}
}

// Register seeds a client descriptor so GetClient can find it.
func (d *Dev) Register(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.ID] = c
}

func (d *Dev) VerifyIdentity(_ context.Context, token string) (VerifyResult, error) {
	const prefix = "client:"
	if !strings.HasPrefix(token, prefix) {
		return VerifyResult{OK: false, Reason: "unrecognized identity token"}, nil
	}
	clientID := strings.TrimPrefix(token, prefix)
	if clientID == "" {
		return VerifyResult{OK: false, Reason: "empty client id"}, nil
	}
	d.mu.Lock()
	if _, ok := d.clients[clientID]; !ok {
		d.clients[clientID] = &Client{ID: clientID, State: "active"}
	}
	d.mu.Unlock()
	return VerifyResult{OK: true, ClientID: clientID}, nil
}

func (d *Dev) GetClient(_ context.Context, clientID string) (*Client, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[clientID]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (d *Dev) UpdateState(_ context.Context, clientID, state string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[clientID]
	if !ok {
		return nil
	}
	c.State = state
	return nil
}
