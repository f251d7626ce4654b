package service

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/morrigan/connection-provider/internal/store"
)

// handleListRecords implements GET / (spec §4.9).
func (s *ConnectionService) handleListRecords(w http.ResponseWriter, r *http.Request) {
	all, err := s.registry.FindAll(r.Context())
	if err != nil {
		slog.Error("service: listing records failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"state": "operationalError", "reason": "registry unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// handleGetRecord implements GET /:connectionId (spec §4.9, §9 open
// question 3: the lookup is awaited before branching on presence).
func (s *ConnectionService) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]

	rec, err := s.registry.FindByID(r.Context(), connectionID)
	if err != nil {
		if err == store.ErrNotFound {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		slog.Error("service: lookup failed", "connectionId", connectionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"state": "operationalError", "reason": "registry unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleSend implements POST /:connectionId/send (spec §4.7).
func (s *ConnectionService) handleSend(w http.ResponseWriter, r *http.Request) {
	connectionID := mux.Vars(r)["connectionId"]
	if connectionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"state": "requestError", "reason": "connectionId is required"})
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"state": "requestError", "reason": "request body is required"})
		return
	}
	msgType, ok := body["type"].(string)
	if !ok || msgType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"state": "requestError", "reason": "body.type is required"})
		return
	}

	result := s.sender.Send(r.Context(), connectionID, body)
	if result.Status != "sent" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed", "reason": result.Reason})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
