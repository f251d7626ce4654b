// Package tokenbroker is a thin facade over the external connection-token
// issuer/verifier (spec §1, §2.2): it mints short-lived tokens whose
// subject is a connection record id and whose payload carries the report
// URL, and verifies tokens presented at WebSocket upgrade time.
//
// A concrete HS256 implementation is provided so the admission flow is
// runnable end to end; production deployments may swap in any Broker.
package tokenbroker

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the connection token lifetime (spec §5: 60 seconds).
const DefaultTTL = 60 * time.Second

// Issued is the result of minting a token.
type Issued struct {
	Token   string
	TokenID string
	Expires time.Time
}

// Verified is the result of a successful verification.
type Verified struct {
	Subject   string
	ReportURL string
}

// VerifyResult wraps a verification outcome the way Identity.VerifyIdentity
// does, so callers can log {ok, reason} uniformly.
type VerifyResult struct {
	OK     bool
	Reason string
	Verified
}

// Payload is the data embedded in a minted token beyond subject/exp.
type Payload struct {
	ReportURL string `json:"reportUrl"`
}

// Broker issues and verifies connection tokens.
type Broker interface {
	Issue(subject string, payload Payload) (Issued, error)
	Verify(token string) (VerifyResult, error)
}

type claims struct {
	ReportURL string `json:"reportUrl"`
	jwt.RegisteredClaims
}

// JWTBroker is the default Broker: HMAC-SHA256 signed JWTs, grounded in the
// claims shape of a typical tunnel-token verifier but using a real JWT
// library instead of hand-rolled HMAC comparison.
type JWTBroker struct {
	secret []byte
	ttl    time.Duration
	newID  func() string
}

// NewJWTBroker constructs a JWTBroker. newID generates token ids (typically
// uuid.NewString); ttl of zero uses DefaultTTL.
func NewJWTBroker(secret []byte, ttl time.Duration, newID func() string) *JWTBroker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWTBroker{secret: secret, ttl: ttl, newID: newID}
}

func (b *JWTBroker) Issue(subject string, payload Payload) (Issued, error) {
	tokenID := b.newID()
	now := time.Now()
	expires := now.Add(b.ttl)

	c := claims{
		ReportURL: payload.ReportURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(b.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("signing connection token: %w", err)
	}

	return Issued{Token: signed, TokenID: tokenID, Expires: expires}, nil
}

func (b *JWTBroker) Verify(token string) (VerifyResult, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{OK: false, Reason: "connection token expired"}, nil
		}
		return VerifyResult{OK: false, Reason: "invalid connection token"}, nil
	}
	if !parsed.Valid {
		return VerifyResult{OK: false, Reason: "invalid connection token"}, nil
	}

	return VerifyResult{
		OK: true,
		Verified: Verified{
			Subject:   c.Subject,
			ReportURL: c.ReportURL,
		},
	}, nil
}
