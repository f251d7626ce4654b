package heartbeat

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

func TestPongMarksAliveAndStampsLastHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory(), "srvA")
	now := time.Now()

	rec := record.New("id1", "cliX", "r", "t1", now.Add(time.Minute))
	require.NoError(t, reg.Issue(ctx, rec))
	require.NoError(t, reg.Promote(ctx, rec, "1.2.3.4", nil, now))

	m := New(reg, time.Hour)
	m.Pong(ctx, "id1")

	got, err := reg.FindByID(ctx, "id1")
	require.NoError(t, err)
	assert.True(t, got.Alive)
	assert.NotNil(t, got.LastHeartbeat)
}

func TestNewDefaultsZeroIntervalToConstant(t *testing.T) {
	reg := registry.New(store.NewMemory(), "srvA")
	m := New(reg, 0)
	assert.Equal(t, Interval, m.interval)
}

func TestStopIsIdempotentForUnknownConnection(t *testing.T) {
	reg := registry.New(store.NewMemory(), "srvA")
	m := New(reg, time.Hour)
	assert.NotPanics(t, func() { m.Stop("never-started") })
}
