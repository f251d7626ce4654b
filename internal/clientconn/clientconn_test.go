package clientconn

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestToken(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	segment := base64.RawURLEncoding.EncodeToString(body)
	return header + "." + segment + ".signature"
}

func TestDecodeReportURLExtractsPayloadField(t *testing.T) {
	token := makeTestToken(t, map[string]interface{}{"reportUrl": "wss://example.com/connect", "sub": "conn1"})

	url, err := decodeReportURL(token)

	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/connect", url)
}

func TestDecodeReportURLToleratesMissingPadding(t *testing.T) {
	// Construct a payload segment whose raw length is not a multiple of 4,
	// forcing the unpadded base64url path (spec §9).
	payload := map[string]interface{}{"reportUrl": "wss://example.com/x"}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	segment := base64.RawURLEncoding.EncodeToString(body)
	require.NotEqual(t, 0, len(segment)%4, "fixture must exercise the padding path")

	token := "header." + segment + ".sig"
	url, err := decodeReportURL(token)

	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/x", url)
}

func TestDecodeReportURLRejectsWrongSegmentCount(t *testing.T) {
	_, err := decodeReportURL("only.two")
	assert.Error(t, err)
}

func TestDecodeReportURLRejectsMissingField(t *testing.T) {
	token := makeTestToken(t, map[string]interface{}{"sub": "conn1"})
	_, err := decodeReportURL(token)
	assert.Error(t, err)
}

func TestSplitType(t *testing.T) {
	provider, message := splitType("client.state")
	assert.Equal(t, "client", provider)
	assert.Equal(t, "state", message)
}

func TestSplitTypeWithDottedMessage(t *testing.T) {
	provider, message := splitType("connection.state.extra")
	assert.Equal(t, "connection", provider)
	assert.Equal(t, "state.extra", message)
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	d := calculateBackoff(30)
	assert.Equal(t, maxReconnectDelay, d)
}

func TestCalculateBackoffGrowsWithAttempt(t *testing.T) {
	first := calculateBackoff(1)
	second := calculateBackoff(2)
	assert.Less(t, first, second)
}

func TestSendRejectsWhenNoSocket(t *testing.T) {
	c := New(Options{IdentityToken: "tok", ReportURL: "https://example.com"})
	err := c.Send(map[string]string{"type": "ping.request"})
	assert.Error(t, err)
}

func TestSendRejectsNonStringType(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()
	sock := websocket.NewConn(clientSide, false, 1024, 1024)
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := serverSide.Read(buf); err != nil {
				return
			}
		}
	}()

	c := New(Options{IdentityToken: "tok", ReportURL: "https://example.com"})
	c.sock = sock

	err := c.Send(map[string]interface{}{"type": 5})
	assert.Error(t, err)
}
