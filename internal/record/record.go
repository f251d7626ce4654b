// Package record defines the ConnectionRecord type: the single source of
// truth for a connection's identity, ownership, and liveness state.
package record

import "time"

// Phase names the four lifecycle stages a Record moves through. It is
// derived from the other fields rather than stored directly.
type Phase string

const (
	PhaseIssued Phase = "issued"
	PhaseActive Phase = "active"
	PhaseSilent Phase = "silent"
	PhaseClosed Phase = "closed"
)

// Record is the authoritative, persisted state for one connection. ID,
// ClientID and ReportURL are set at creation and ServerID at upgrade; none
// of them is mutated afterward.
type Record struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"clientId"`
	ServerID      string     `json:"serverId,omitempty"`
	TokenID       string     `json:"tokenId,omitempty"`
	ClientAddress string     `json:"clientAddress,omitempty"`
	ReportURL     string     `json:"reportUrl"`
	Timeout       *time.Time `json:"timeout,omitempty"`
	Connected     *time.Time `json:"connected,omitempty"`
	Disconnected  *time.Time `json:"disconnected,omitempty"`
	Alive         bool       `json:"alive"`
	Open          bool       `json:"open"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
}

// New builds the record created at token-issuance time (§3: issued phase).
func New(id, clientID, reportURL, tokenID string, timeout time.Time) *Record {
	return &Record{
		ID:        id,
		ClientID:  clientID,
		ReportURL: reportURL,
		TokenID:   tokenID,
		Timeout:   &timeout,
		Alive:     false,
		Open:      true,
	}
}

// IsConnected reports whether the record has been promoted past admission.
func (r *Record) IsConnected() bool {
	return r.Connected != nil
}

// IsAbandoned reports whether an issued-but-never-upgraded record's
// timeout has elapsed, making it eligible for replacement (§4.1 step 3).
func (r *Record) IsAbandoned(now time.Time) bool {
	if r.IsConnected() {
		return false
	}
	if r.Timeout == nil {
		return true
	}
	return now.After(*r.Timeout)
}

// HoldsOpenSlot reports whether this record still occupies the
// single-active-session slot for its client (I1): open, and either
// already connected or its issuance timeout has not yet elapsed.
func (r *Record) HoldsOpenSlot(now time.Time) bool {
	if !r.Open {
		return false
	}
	if r.IsConnected() {
		return true
	}
	return r.Timeout != nil && !r.Timeout.Before(now)
}

// Phase reports the current lifecycle stage (§3).
func (r *Record) Phase() Phase {
	switch {
	case !r.Open:
		return PhaseClosed
	case !r.IsConnected():
		return PhaseIssued
	case r.Alive:
		return PhaseActive
	default:
		return PhaseSilent
	}
}

// Promote applies the WS-upgrade mutation set from §4.2 step 3: the record
// transitions from issued to active, owned by serverID.
func (r *Record) Promote(serverID, clientAddress string, now time.Time) {
	r.Alive = true
	r.Connected = &now
	r.ServerID = serverID
	r.ClientAddress = clientAddress
	r.Timeout = nil
}

// MarkHeartbeatMissed flips alive false ahead of sending the next ping (§4.4).
func (r *Record) MarkHeartbeatMissed() {
	r.Alive = false
}

// MarkPong records a received pong (§4.4).
func (r *Record) MarkPong(now time.Time) {
	r.Alive = true
	r.LastHeartbeat = &now
}

// Close applies the cleanup mutation set (§4.6 step 3).
func (r *Record) Close(closedByServer bool, now time.Time) {
	r.Alive = false
	r.Open = false
	if closedByServer {
		r.Disconnected = &now
	}
}

// ClearToken empties TokenID (§3 field table: "cleared on cleanup"; I5:
// every record with tokenId set has a corresponding token record, so the
// caller must delete that token record before or alongside this call).
func (r *Record) ClearToken() {
	r.TokenID = ""
}
