// Package store abstracts the persistent document store backing the
// connection registry (spec §6: collections "morrigan.connections" and
// "morrigan.connections.tokens"). The Redis implementation can be shared
// across server instances; Memory is process-local. Ownership of a live
// connection is disambiguated by the record's ServerID field, not by the
// store.
package store

import (
	"context"
	"errors"

	"github.com/morrigan/connection-provider/internal/record"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// TokenRecord is the persisted counterpart to an issued connection token
// (spec §3 I5: every record with a TokenID has a matching token record).
type TokenRecord struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// Filter narrows FindOne to records matching non-zero fields.
// Empty fields are ignored, so the zero Filter matches everything.
type Filter struct {
	ClientID string
	ServerID string
	Open     *bool
}

// Store is the read-through/write-through interface for connection and
// token records (spec §4.5). It never touches the non-serializable local
// state (sockets, timers) — that belongs to the Registry alone.
type Store interface {
	FindByID(ctx context.Context, id string) (*record.Record, error)
	FindByClientID(ctx context.Context, clientID string) (*record.Record, error)
	FindOne(ctx context.Context, f Filter) (*record.Record, error)
	FindAll(ctx context.Context) ([]*record.Record, error)
	Upsert(ctx context.Context, r *record.Record) error
	DeleteByID(ctx context.Context, id string) error

	FindToken(ctx context.Context, id string) (*TokenRecord, error)
	UpsertToken(ctx context.Context, t *TokenRecord) error
	DeleteToken(ctx context.Context, id string) error
}
