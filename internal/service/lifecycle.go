package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/morrigan/connection-provider/internal/eventbus"
)

// cleanup implements §4.6: idempotent teardown invoked on socket close and
// on server shutdown.
func (s *ConnectionService) cleanup(connectionID string, socketWasOpen bool) {
	s.cleanupCtx(context.Background(), connectionID, socketWasOpen)
}

func (s *ConnectionService) cleanupCtx(ctx context.Context, connectionID string, socketWasOpen bool) {
	sock, hadSocket := s.registry.Socket(connectionID)
	if hadSocket {
		sock.Close()
	}
	s.heartbeat.Stop(connectionID)

	rec, err := s.registry.FindByID(ctx, connectionID)
	if err != nil {
		return
	}
	if !rec.Open {
		// Already cleaned up: a repeat call persists and emits nothing.
		return
	}

	if rec.TokenID != "" {
		if err := s.registry.DeleteToken(ctx, rec.TokenID); err != nil {
			slog.Error("service: cleanup token delete failed", "connectionId", connectionID, "tokenId", rec.TokenID, "error", err)
		}
		rec.ClearToken()
	}

	closedByServer := socketWasOpen && hadSocket
	if err := s.registry.Close(ctx, rec, closedByServer, now()); err != nil {
		slog.Error("service: cleanup persist failed", "connectionId", connectionID, "error", err)
	}

	if socketWasOpen {
		s.bus.Emit(eventbus.Disconnect, rec)

		client, found, err := s.identity.GetClient(ctx, rec.ClientID)
		if err != nil {
			slog.Error("service: identity lookup during cleanup failed", "clientId", rec.ClientID, "error", err)
		} else if found && !strings.HasPrefix(client.State, "stopped") {
			if err := s.identity.UpdateState(ctx, rec.ClientID, "unknown"); err != nil {
				slog.Error("service: advisory client state reset failed", "clientId", rec.ClientID, "error", err)
			}
		}
	}
}

// Shutdown implements the Lifecycle Manager's shutdown path (spec §5):
// every live session is closed and cleanup is invoked for each.
func (s *ConnectionService) Shutdown(ctx context.Context) {
	ids := s.registry.LocalConnections()
	slog.Info("service: shutting down, closing live sessions", "count", len(ids))
	for _, id := range ids {
		s.cleanupCtx(ctx, id, true)
	}
}
