package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/morrigan/connection-provider/internal/record"
)

// Key namespaces match the collection names spec.md fixes as
// compatibility-critical (§6): morrigan.connections / morrigan.connections.tokens.
const (
	recordKeyPrefix  = "morrigan.connections:"
	clientIndexPrefix = "morrigan.connections.byClient:"
	tokenKeyPrefix   = "morrigan.connections.tokens:"
)

// Redis is the production Store backend: each record and token is a JSON
// document under its own key, with a clientID -> recordID index key for
// FindByClientID.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-configured *redis.Client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func recordKey(id string) string { return recordKeyPrefix + id }
func clientIndexKey(clientID string) string { return clientIndexPrefix + clientID }
func tokenKey(id string) string { return tokenKeyPrefix + id }

func (r *Redis) FindByID(ctx context.Context, id string) (*record.Record, error) {
	raw, err := r.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get record %s: %w", id, err)
	}
	var rec record.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshalling record %s: %w", id, err)
	}
	return &rec, nil
}

func (r *Redis) FindByClientID(ctx context.Context, clientID string) (*record.Record, error) {
	id, err := r.client.Get(ctx, clientIndexKey(clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get client index %s: %w", clientID, err)
	}
	return r.FindByID(ctx, id)
}

func (r *Redis) FindOne(ctx context.Context, f Filter) (*record.Record, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range all {
		if matches(rec, f) {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (r *Redis) FindAll(ctx context.Context) ([]*record.Record, error) {
	keys, err := r.client.Keys(ctx, recordKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys scan: %w", err)
	}
	out := make([]*record.Record, 0, len(keys))
	for _, k := range keys {
		raw, err := r.client.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get %s: %w", k, err)
		}
		var rec record.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshalling %s: %w", k, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *Redis) Upsert(ctx context.Context, rec *record.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling record %s: %w", rec.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey(rec.ID), raw, 0)
	pipe.Set(ctx, clientIndexKey(rec.ClientID), rec.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert record %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Redis) DeleteByID(ctx context.Context, id string) error {
	rec, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordKey(id))
	// Only clear the client index if it still points at this id: a newer
	// record for the same clientID may already have overwritten it.
	current, idxErr := r.client.Get(ctx, clientIndexKey(rec.ClientID)).Result()
	if idxErr == nil && current == id {
		pipe.Del(ctx, clientIndexKey(rec.ClientID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete record %s: %w", id, err)
	}
	return nil
}

func (r *Redis) FindToken(ctx context.Context, id string) (*TokenRecord, error) {
	raw, err := r.client.Get(ctx, tokenKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get token %s: %w", id, err)
	}
	var t TokenRecord
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("unmarshalling token %s: %w", id, err)
	}
	return &t, nil
}

func (r *Redis) UpsertToken(ctx context.Context, t *TokenRecord) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling token %s: %w", t.ID, err)
	}
	if err := r.client.Set(ctx, tokenKey(t.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis upsert token %s: %w", t.ID, err)
	}
	return nil
}

func (r *Redis) DeleteToken(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, tokenKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete token %s: %w", id, err)
	}
	return nil
}
