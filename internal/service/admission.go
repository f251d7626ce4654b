package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/morrigan/connection-provider/internal/eventbus"
	"github.com/morrigan/connection-provider/internal/record"
	"github.com/morrigan/connection-provider/internal/store"
	"github.com/morrigan/connection-provider/internal/tokenbroker"
)

// handleIssueToken implements POST / (spec §4.1).
func (s *ConnectionService) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	identityToken := r.Header.Get("Authorization")
	if identityToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"state":  "requestError",
			"reason": "No token provided.",
		})
		return
	}

	verified, err := s.identity.VerifyIdentity(r.Context(), identityToken)
	if err != nil {
		slog.Error("admission: identity verification errored", "error", err)
		writeJSON(w, http.StatusForbidden, map[string]string{"state": "authorizationError", "reason": "identity verification failed"})
		return
	}
	if !verified.OK {
		slog.Warn("admission: identity verification rejected", "remote_addr", r.RemoteAddr, "reason", verified.Reason)
		slog.Debug("admission: rejected identity token", "token", identityToken)
		writeJSON(w, http.StatusForbidden, map[string]string{"state": "authorizationError", "reason": verified.Reason})
		return
	}
	clientID := verified.ClientID

	existing, holdsSlot, err := s.registry.OpenSlot(r.Context(), clientID, now())
	if err != nil {
		slog.Error("admission: registry lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"state": "operationalError", "reason": "registry unavailable"})
		return
	}
	if holdsSlot {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"state":  "requestError",
			"reason": fmt.Sprintf("client '%s' already has an open connection ('%s')", clientID, existing.ID),
		})
		return
	}
	if existing != nil {
		if existing.TokenID != "" {
			if err := s.registry.DeleteToken(r.Context(), existing.TokenID); err != nil {
				slog.Error("admission: deleting stale token failed", "error", err)
			}
		}
		if err := s.registry.DeleteByID(r.Context(), existing.ID); err != nil {
			slog.Error("admission: deleting stale record failed", "error", err)
		}
	}

	id := uuid.NewString()
	reportURL := fmt.Sprintf("%s/%s/connect", s.cfg.EndpointBase, s.cfg.ProviderName)

	issued, err := s.broker.Issue(id, tokenbroker.Payload{ReportURL: reportURL})
	if err != nil {
		slog.Error("admission: issuing connection token failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"state": "operationalError", "reason": "token issuance failed"})
		return
	}

	rec := record.New(id, clientID, reportURL, issued.TokenID, issued.Expires)
	rec.ClientAddress = r.RemoteAddr
	if err := s.registry.Issue(r.Context(), rec); err != nil {
		slog.Error("admission: persisting issued record failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"state": "operationalError", "reason": "registry unavailable"})
		return
	}
	if err := s.registry.IssueToken(r.Context(), &store.TokenRecord{ID: issued.TokenID, Subject: id}); err != nil {
		slog.Error("admission: persisting token record failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"state": "success",
		"token": issued.Token,
	})
}

// handleUpgrade implements GET/WS /connect (spec §4.2).
func (s *ConnectionService) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	connToken := r.Header.Get("Origin")

	verified, err := s.broker.Verify(connToken)
	if err != nil || !verified.OK {
		reason := "invalid connection token"
		if verified.Reason != "" {
			reason = verified.Reason
		}
		slog.Warn("admission: connection token rejected", "remote_addr", r.RemoteAddr, "reason", reason)
		slog.Debug("admission: rejected connection token", "token", connToken)
		if sock, upErr := s.upgrader.Upgrade(w, r, nil); upErr == nil {
			sock.Close()
		}
		return
	}

	rec, err := s.registry.FindByID(r.Context(), verified.Subject)
	if err != nil {
		slog.Warn("admission: connection token subject has no record", "subject", verified.Subject, "error", err)
		if sock, upErr := s.upgrader.Upgrade(w, r, nil); upErr == nil {
			sock.Close()
		}
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("admission: websocket upgrade failed", "error", err)
		return
	}

	if err := s.registry.Promote(r.Context(), rec, r.RemoteAddr, sock, now()); err != nil {
		slog.Error("admission: promoting record failed", "connectionId", rec.ID, "error", err)
		sock.Close()
		return
	}

	// §9 open question 1: subscribers may mutate rec in-process, but only
	// the upgrade write above is persisted — no second write happens here.
	s.bus.Emit(eventbus.Authenticate, rec, sock)

	// The connection outlives this handler: net/http cancels r.Context() the
	// moment ServeHTTP returns, hijack or not, so the heartbeat loop and its
	// pong handler must run against a background context instead.
	connCtx := context.Background()
	s.heartbeat.Start(connCtx, rec, sock)
	sock.SetPongHandler(func(string) error {
		s.heartbeat.Pong(connCtx, rec.ID)
		return nil
	})
	sock.SetCloseHandler(func(code int, text string) error {
		s.cleanup(rec.ID, true)
		return nil
	})

	if err := sock.WriteJSON(map[string]string{"type": "connection.state", "state": "accepted"}); err != nil {
		slog.Warn("admission: writing promotion frame failed", "connectionId", rec.ID, "error", err)
	}

	s.bus.Emit(eventbus.Connect, rec, sock)

	go s.readLoop(rec, sock)
}

func (s *ConnectionService) readLoop(rec *record.Record, sock *websocket.Conn) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			s.cleanup(rec.ID, true)
			return
		}
		s.dispatch.Dispatch(raw, sock, rec, s)
	}
}
