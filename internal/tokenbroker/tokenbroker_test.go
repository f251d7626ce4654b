package tokenbroker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker() *JWTBroker {
	counter := 0
	return NewJWTBroker([]byte("test-secret"), time.Minute, func() string {
		counter++
		return "tok" + string(rune('0'+counter))
	})
}

func TestIssueThenVerifyRoundTrips(t *testing.T) {
	b := newTestBroker()

	issued, err := b.Issue("conn1", Payload{ReportURL: "wss://example.com/connect"})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.NotEmpty(t, issued.TokenID)

	result, err := b.Verify(issued.Token)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "conn1", result.Subject)
	assert.Equal(t, "wss://example.com/connect", result.ReportURL)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	b := newTestBroker()

	result, err := b.Verify("not-a-jwt")
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	b := NewJWTBroker([]byte("test-secret"), time.Millisecond, func() string { return "tok1" })

	issued, err := b.Issue("conn1", Payload{ReportURL: "wss://example.com/connect"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	result, err := b.Verify(issued.Token)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "expired")
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTBroker([]byte("secret-a"), DefaultTTL, func() string { return "tok1" })
	verifier := NewJWTBroker([]byte("secret-b"), DefaultTTL, func() string { return "tok1" })

	issued, err := issuer.Issue("conn1", Payload{ReportURL: "wss://example.com/connect"})
	require.NoError(t, err)

	result, err := verifier.Verify(issued.Token)
	require.NoError(t, err)
	assert.False(t, result.OK)
}
