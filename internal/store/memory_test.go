package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morrigan/connection-provider/internal/record"
)

func TestMemoryUpsertAndFindByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	r := record.New("id1", "cliX", "https://example.com", "tok1", time.Now().Add(time.Minute))
	if err := m.Upsert(ctx, r); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := m.FindByID(ctx, "id1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if got.ClientID != "cliX" {
		t.Errorf("ClientID = %q, want cliX", got.ClientID)
	}
}

func TestMemoryFindByIDNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemoryFindByClientID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := record.New("id1", "cliX", "https://example.com", "tok1", time.Now().Add(time.Minute))
	if err := m.Upsert(ctx, r); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := m.FindByClientID(ctx, "cliX")
	if err != nil {
		t.Fatalf("FindByClientID() error = %v", err)
	}
	if got.ID != "id1" {
		t.Errorf("ID = %q, want id1", got.ID)
	}
}

func TestMemoryDeleteByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	r := record.New("id1", "cliX", "https://example.com", "tok1", time.Now().Add(time.Minute))
	_ = m.Upsert(ctx, r)

	if err := m.DeleteByID(ctx, "id1"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}

	if _, err := m.FindByID(ctx, "id1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := m.FindByClientID(ctx, "cliX"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByClientID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryFindOneFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	open := true
	r1 := record.New("id1", "cliA", "r", "t1", time.Now().Add(time.Minute))
	r2 := record.New("id2", "cliB", "r", "t2", time.Now().Add(time.Minute))
	_ = m.Upsert(ctx, r1)
	_ = m.Upsert(ctx, r2)

	got, err := m.FindOne(ctx, Filter{ClientID: "cliB", Open: &open})
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if got.ID != "id2" {
		t.Errorf("ID = %q, want id2", got.ID)
	}
}

func TestMemoryTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tok := &TokenRecord{ID: "tok1", Subject: "id1"}
	if err := m.UpsertToken(ctx, tok); err != nil {
		t.Fatalf("UpsertToken() error = %v", err)
	}

	got, err := m.FindToken(ctx, "tok1")
	if err != nil {
		t.Fatalf("FindToken() error = %v", err)
	}
	if got.Subject != "id1" {
		t.Errorf("Subject = %q, want id1", got.Subject)
	}

	if err := m.DeleteToken(ctx, "tok1"); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	if _, err := m.FindToken(ctx, "tok1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindToken() after delete error = %v, want ErrNotFound", err)
	}
}
