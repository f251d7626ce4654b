package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morrigan/connection-provider/internal/record"
	"github.com/morrigan/connection-provider/internal/store"
)

func TestIssueAndFindByID(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")

	rec := record.New("id1", "cliX", "https://example.com/connect", "tok1", time.Now().Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	got, err := reg.FindByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "cliX", got.ClientID)
}

func TestOpenSlotReportsHeldSlot(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	existing, held, err := reg.OpenSlot(ctx, "cliX", now)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, "id1", existing.ID)
}

func TestOpenSlotFreeForUnknownClient(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")

	existing, held, err := reg.OpenSlot(ctx, "never-seen", time.Now())
	require.NoError(t, err)
	assert.False(t, held)
	assert.Nil(t, existing)
}

func TestOpenSlotFreeAfterExpiredIssuance(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(-time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	_, held, err := reg.OpenSlot(ctx, "cliX", now)
	require.NoError(t, err)
	assert.False(t, held, "an abandoned issuance must not hold the client's slot")
}

func TestPromoteRegistersLocalSocket(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	require.NoError(t, reg.Promote(ctx, rec, "1.2.3.4", nil, now))

	assert.Equal(t, "srvA", rec.ServerID)
	assert.True(t, rec.Alive)
	_, ok := reg.Socket("id1")
	assert.True(t, ok, "promoted connection must have a local socket entry, even if nil")
}

func TestCloseUnregistersLocalSocket(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))
	require.NoError(t, reg.Promote(ctx, rec, "1.2.3.4", nil, now))

	require.NoError(t, reg.Close(ctx, rec, true, now))

	_, ok := reg.Socket("id1")
	assert.False(t, ok)
	assert.Empty(t, reg.LocalConnections())

	got, err := reg.FindByID(ctx, "id1")
	require.NoError(t, err)
	assert.False(t, got.Open)
	assert.False(t, got.Alive)
	assert.NotNil(t, got.Disconnected)
}

func TestDeleteByIDRemovesRecord(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")

	rec := record.New("id1", "cliX", "r", "t1", time.Now().Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	require.NoError(t, reg.DeleteByID(ctx, "id1"))

	_, err := reg.FindByID(ctx, "id1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocalConnectionsTracksOnlyOwnedSockets(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory(), "srvA")
	now := time.Now()

	r1 := record.New("id1", "cliA", "r", "t1", now.Add(time.Minute))
	r2 := record.New("id2", "cliB", "r", "t2", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, r1))
	require.NoError(t, reg.Issue(ctx, r2))
	require.NoError(t, reg.Promote(ctx, r1, "1.1.1.1", nil, now))

	assert.ElementsMatch(t, []string{"id1"}, reg.LocalConnections())
}
