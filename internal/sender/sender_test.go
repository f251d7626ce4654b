package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morrigan/connection-provider/internal/record"
	"github.com/morrigan/connection-provider/internal/registry"
	"github.com/morrigan/connection-provider/internal/store"
)

func TestSendFailsForUnknownConnection(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory(), "srvA")
	s := New(reg)

	result := s.Send(ctx, "missing", "hello")

	assert.Equal(t, StatusNotFound, result.Status)
}

func TestSendFailsWhenNotAliveOrOpen(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory(), "srvA")
	s := New(reg)
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))

	result := s.Send(ctx, "id1", "hello")

	assert.Equal(t, StatusNotAlive, result.Status)
}

func TestSendFailsWhenOwnedByAnotherServer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	regA := registry.New(st, "srvA")
	regB := registry.New(st, "srvB")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, regA.Issue(ctx, rec))
	require.NoError(t, regA.Promote(ctx, rec, "1.2.3.4", nil, now))

	s := New(regB)
	result := s.Send(ctx, "id1", "hello")

	assert.Equal(t, StatusNotOwned, result.Status)
	assert.Contains(t, result.Reason, "srvB")
}

func TestEncodeSendsStringsVerbatim(t *testing.T) {
	payload, err := encode("already-a-string")
	require.NoError(t, err)
	assert.Equal(t, "already-a-string", string(payload))
}

func TestEncodeMarshalsOtherValues(t *testing.T) {
	payload, err := encode(map[string]string{"type": "ping.reply"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping.reply"}`, string(payload))
}
