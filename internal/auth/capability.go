// Package auth gates routes by capability rather than by a single shared
// bearer token, generalizing the teacher's all-or-nothing auth middleware
// to the capability set a connection token or identity carries (spec §6:
// "api", "connection", "connection.send").
package auth

import (
	"context"
	"net/http"
)

// Capability names one permitted action.
type Capability string

const (
	CapabilityAPI            Capability = "api"
	CapabilityConnection     Capability = "connection"
	CapabilityConnectionSend Capability = "connection.send"
)

// Set is an unordered collection of capabilities a caller holds.
type Set map[Capability]struct{}

// NewSet builds a Set from a list of capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set grants c.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

type contextKey int

const capabilitiesKey contextKey = iota

// WithCapabilities returns a context carrying the caller's capability set.
func WithCapabilities(ctx context.Context, caps Set) context.Context {
	return context.WithValue(ctx, capabilitiesKey, caps)
}

// FromContext recovers the capability set a prior middleware attached, or
// an empty set if none was attached.
func FromContext(ctx context.Context) Set {
	caps, ok := ctx.Value(capabilitiesKey).(Set)
	if !ok {
		return Set{}
	}
	return caps
}

// Require returns middleware that rejects requests lacking cap with 403,
// modeling the teacher's req.authenticated.functions check generalized
// to named capabilities.
func Require(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caps := FromContext(r.Context())
			if !caps.Has(cap) {
				http.Error(w, `{"state":"rejected","reason":"missing capability `+string(cap)+`"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
