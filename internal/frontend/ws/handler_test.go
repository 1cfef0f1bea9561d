package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pcollard/wordhall/internal/auth"
	"github.com/pcollard/wordhall/internal/config"
	"github.com/pcollard/wordhall/internal/game/lexicon"
	"github.com/pcollard/wordhall/internal/game/mode"
	"github.com/pcollard/wordhall/internal/game/room"
	"github.com/pcollard/wordhall/internal/protocol"
)

func testWsConfig() config.WebsocketConfig {
	return config.WebsocketConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteTimeout:    5 * time.Second,
		OutboxSize:      64,
	}
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		HeartbeatInterval: 10 * time.Second,
		GraceWindow:       10 * time.Second,
		IdleTimeout:       time.Minute,
		PurgeGrace:        time.Minute,
		SweepInterval:     time.Second,
	}
}

type wsFixture struct {
	server   *httptest.Server
	registry *room.Registry
	tokens   *auth.Manager
}

func newWsFixture(t *testing.T) *wsFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	lex := lexicon.New(map[string]int{"cat": 3, "dog": 3, "house": 5})
	modeFor := func(name string) (mode.Config, error) {
		return mode.ForName(name, 10, 1), nil
	}
	registry := room.NewRegistry(testGameConfig(), lex, modeFor, logger)
	t.Cleanup(registry.Stop)

	tokens := auth.NewManager(config.AuthConfig{Secret: "ws-test-secret", TokenTTL: time.Hour})
	handler := NewGameHandler(testWsConfig(), registry, tokens, logger)

	r := mux.NewRouter()
	r.Handle("/ws", handler)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, registry: registry, tokens: tokens}
}

func (f *wsFixture) dial(t *testing.T, playerID, name string) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Issue(playerID, name)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, kind protocol.Kind, payload any) {
	t.Helper()
	raw, err := protocol.Encode(kind, 0, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// recv reads envelopes until one of the wanted kind arrives, discarding
// interleaved broadcasts.
func recv(t *testing.T, conn *websocket.Conn, kind protocol.Kind) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		if env.Type == kind {
			return env
		}
	}
}

func TestRejectsMissingToken(t *testing.T) {
	f := newWsFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestJoinStartAndPlay(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	p2 := f.dial(t, "p2", "Bob")

	send(t, p1, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1", Mode: "cooperative"})
	env := recv(t, p1, protocol.KindJoinAccepted)
	var acc protocol.JoinAccepted
	require.NoError(t, env.DecodeData(&acc))
	assert.Equal(t, "p1", acc.PlayerID)
	assert.Equal(t, "lobby", acc.Snapshot.Phase)

	send(t, p2, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1"})
	recv(t, p2, protocol.KindJoinAccepted)

	send(t, p1, protocol.KindStartRequest, nil)
	recv(t, p1, protocol.KindRoomStarted)
	recv(t, p2, protocol.KindRoomStarted)

	send(t, p1, protocol.KindMoveSubmit, protocol.MoveSubmit{Token: "cat", Position: 0})
	env = recv(t, p2, protocol.KindStateDelta)
	assert.Equal(t, uint64(1), env.Seq)
	var delta protocol.StateDelta
	require.NoError(t, env.DecodeData(&delta))
	assert.Equal(t, "p1", delta.PlayerID)
	assert.Equal(t, "cat", delta.Word)
	assert.Equal(t, 3, delta.ScoreDelta)

	// A conflicting claim is rejected privately.
	send(t, p2, protocol.KindMoveSubmit, protocol.MoveSubmit{Token: "dog", Position: 0})
	env = recv(t, p2, protocol.KindMoveRejected)
	var rej protocol.MoveRejected
	require.NoError(t, env.DecodeData(&rej))
	assert.Equal(t, protocol.RejectPositionTaken, rej.Reason)
}

func TestReconnectResumesSession(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	send(t, p1, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1", Mode: "cooperative"})
	recv(t, p1, protocol.KindJoinAccepted)
	send(t, p1, protocol.KindStartRequest, nil)
	recv(t, p1, protocol.KindRoomStarted)
	send(t, p1, protocol.KindMoveSubmit, protocol.MoveSubmit{Token: "house", Position: 2})
	recv(t, p1, protocol.KindStateDelta)

	// Drop the socket, then come back with a new connection and the same
	// identity.
	require.NoError(t, p1.Close())

	again := f.dial(t, "p1", "Alice")
	send(t, again, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1"})
	env := recv(t, again, protocol.KindJoinAccepted)
	var acc protocol.JoinAccepted
	require.NoError(t, env.DecodeData(&acc))
	assert.Equal(t, uint64(1), acc.Snapshot.Seq)
	require.Len(t, acc.Snapshot.Players, 1)
	assert.Equal(t, 5, acc.Snapshot.Players[0].Score)
	require.Len(t, acc.Snapshot.Board, 1)
	assert.Equal(t, "house", acc.Snapshot.Board[0].Word)
}

func TestSnapshotRequest(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	send(t, p1, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1", Mode: "cooperative"})
	recv(t, p1, protocol.KindJoinAccepted)
	send(t, p1, protocol.KindStartRequest, nil)
	recv(t, p1, protocol.KindRoomStarted)
	send(t, p1, protocol.KindMoveSubmit, protocol.MoveSubmit{Token: "cat", Position: 0})
	recv(t, p1, protocol.KindStateDelta)

	send(t, p1, protocol.KindSnapshotRequest, nil)
	env := recv(t, p1, protocol.KindSnapshot)
	var snap protocol.RoomSnapshot
	require.NoError(t, env.DecodeData(&snap))
	assert.Equal(t, uint64(1), snap.Seq)
	assert.Len(t, snap.Board, 1)
}

func TestMoveBeforeJoinRejected(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	send(t, p1, protocol.KindMoveSubmit, protocol.MoveSubmit{Token: "cat", Position: 0})
	env := recv(t, p1, protocol.KindMoveRejected)
	var rej protocol.MoveRejected
	require.NoError(t, env.DecodeData(&rej))
	assert.Equal(t, protocol.RejectNotJoined, rej.Reason)
}

func TestBadFrameReportsError(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	require.NoError(t, p1.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := recv(t, p1, protocol.KindError)
	var em protocol.ErrorMessage
	require.NoError(t, env.DecodeData(&em))
	assert.Equal(t, "bad_frame", em.Code)

	require.NoError(t, p1.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)))
	env = recv(t, p1, protocol.KindError)
	require.NoError(t, env.DecodeData(&em))
	assert.Equal(t, "unknown_type", em.Code)
}

func TestLeaveRequest(t *testing.T) {
	f := newWsFixture(t)

	p1 := f.dial(t, "p1", "Alice")
	p2 := f.dial(t, "p2", "Bob")
	send(t, p1, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1", Mode: "cooperative"})
	recv(t, p1, protocol.KindJoinAccepted)
	send(t, p2, protocol.KindJoinRequest, protocol.JoinRequest{RoomID: "R1"})
	recv(t, p2, protocol.KindJoinAccepted)

	send(t, p2, protocol.KindLeaveRequest, nil)
	recv(t, p1, protocol.KindPlayerLeft)

	r, err := f.registry.Get("R1")
	require.NoError(t, err)
	deadline := time.After(2 * time.Second)
	for r.Info().Players != 1 {
		select {
		case <-deadline:
			t.Fatalf("leave never took effect, players=%d", r.Info().Players)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
