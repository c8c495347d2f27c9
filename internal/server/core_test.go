package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilnaes/linepad/internal/common"
	"github.com/ilnaes/linepad/internal/config"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readMessage(t *testing.T, conn *websocket.Conn) common.Message {
	t.Helper()
	var env common.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	msg, err := env.Unwrap()
	require.NoError(t, err)
	return msg
}

func TestValidClientID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"alice", true},
		{"Bob42", true},
		{"", false},
		{"SERVER", false},
		{"al ice", false},
		{"bob;drop", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.ok, validClientID(tt.id) == nil)
		})
	}
}

func TestWebsocketSession(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts)+"?client=no+pe", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"?client=alice", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, ok := readMessage(t, conn).(*common.DocumentSnapshot)
	assert.True(t, ok)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, &common.ErrorMessage{Message: "malformed message"}, readMessage(t, conn))

	env, err := common.Wrap(&common.ClientReleaseNotice{ClientID: "bob"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
	assert.Equal(t, &common.ErrorMessage{Message: "not a request: client_release"}, readMessage(t, conn))

	env, err = common.Wrap(&common.MoveLockRequest{TargetLineID: 1})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
	assert.Equal(t, &common.MoveLockResult{ClientID: "alice", OldLineID: -1, NewLineID: 1}, readMessage(t, conn))

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts)+"?client=alice", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	var h Health
	require.NoError(t, json.NewDecoder(res.Body).Decode(&h))
	assert.Equal(t, Health{Clients: 1, Lines: 1}, h)
}

func TestTokens(t *testing.T) {
	s := newTestServer(t, config.Config{AuthSecret: "sekrit"})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"SERVER"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, err = http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, err)
	token, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	uid, ok := s.parseJWT(string(token))
	require.True(t, ok)
	assert.Equal(t, "alice", uid)

	// ?client= means nothing once tokens are required
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts)+"?client=alice", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+string(token))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	assert.True(t, s.hub.has("alice"))

	other := NewServer(nil, config.Config{AuthSecret: "other"}, nil)
	forged, err := other.signJWT(Claims{Uid: "bob"})
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts)+"?token="+forged, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginDisabled(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDocumentsEndpoint(t *testing.T) {
	s := newTestServer(t, config.Config{})
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/documents")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	var list common.DocumentList
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	assert.Empty(t, list.Documents)
}
