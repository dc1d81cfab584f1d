package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/electricmaze/maze"
)

type fakeConfigs map[string]maze.Grid

func (f fakeConfigs) LoadGrid(_ context.Context, name string) (maze.Grid, error) {
	g, ok := f[name]
	if !ok {
		return nil, errors.New("configuration not found")
	}
	return g.Clone(), nil
}

// startHub serves a fresh 8x8 hub and returns its WebSocket URL.
func startHub(t *testing.T, configs ConfigSource) (*Hub, string) {
	t.Helper()

	hub := NewHub("test", NewGameState(8, 8), configs, nil)
	go hub.Run()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(ws, "player")
	}))

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	env := readEvent(t, ws, EventGameState)
	var state GameState
	require.NoError(t, json.Unmarshal(env.Data, &state))

	return ws
}

// readEvent reads frames until one named event arrives.
func readEvent(t *testing.T, ws *websocket.Conn, event string) Envelope {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, id, event string, data any) Ack {
	t.Helper()

	env, err := newEnvelope(event, id, data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	ackEnv := readEvent(t, ws, EventAck)
	assert.Equal(t, id, ackEnv.ID)

	var ack Ack
	require.NoError(t, json.Unmarshal(ackEnv.Data, &ack))
	return ack
}

func TestHubSendsStateOnConnect(t *testing.T) {
	hub, url := startHub(t, nil)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	env := readEvent(t, ws, EventGameState)
	var state GameState
	require.NoError(t, json.Unmarshal(env.Data, &state))

	assert.Equal(t, maze.NewGrid(8, 8), state.Grid)
	assert.Empty(t, state.Teams)
	assert.Empty(t, state.CurrentTeam)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubTeams(t *testing.T) {
	hub, url := startHub(t, nil)
	alice := dialHub(t, url)
	bob := dialHub(t, url)

	ack := send(t, alice, "1", EventAddTeam, "Red")
	assert.Equal(t, Ack{Success: true}, ack)

	env := readEvent(t, bob, EventTeamAdded)
	var team string
	require.NoError(t, json.Unmarshal(env.Data, &team))
	assert.Equal(t, "Red", team)

	ack = send(t, bob, "2", EventAddTeam, "Red")
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "team already exists")

	ack = send(t, alice, "3", EventSetCurrentTeam, "Blue")
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "team not found")

	ack = send(t, alice, "4", EventSetCurrentTeam, "Red")
	assert.True(t, ack.Success)
	env = readEvent(t, bob, EventCurrentTeamChanged)
	assert.JSONEq(t, `"Red"`, string(env.Data))

	ack = send(t, bob, "5", EventRemoveTeam, "Red")
	assert.True(t, ack.Success)
	readEvent(t, alice, EventTeamRemoved)

	state := hub.Snapshot()
	assert.Empty(t, state.Teams)
	assert.Empty(t, state.CurrentTeam)
}

func TestHubUpdateSquare(t *testing.T) {
	hub, url := startHub(t, nil)
	alice := dialHub(t, url)
	bob := dialHub(t, url)

	ack := send(t, alice, "a", EventUpdateSquare, SquareUpdate{Row: 2, Col: 3, Status: maze.Intent{Action: maze.SetKind, Kind: maze.Path}})
	require.True(t, ack.Success, ack.Error)

	ack = send(t, alice, "b", EventUpdateSquare, SquareUpdate{Row: 2, Col: 3, Status: maze.Intent{Action: maze.Reveal}})
	require.True(t, ack.Success, ack.Error)

	readEvent(t, bob, EventSquareUpdated)
	env := readEvent(t, bob, EventSquareUpdated)
	var upd SquareUpdated
	require.NoError(t, json.Unmarshal(env.Data, &upd))
	assert.Equal(t, SquareUpdated{Row: 2, Col: 3, Status: maze.Square{IsPath: true, IsRevealed: true, IsActive: true}}, upd)

	t.Run("out of bounds", func(t *testing.T) {
		ack := send(t, alice, "c", EventUpdateSquare, SquareUpdate{Row: 8, Col: 0, Status: maze.Intent{Action: maze.Reveal}})
		assert.False(t, ack.Success)
		assert.Contains(t, ack.Error, "invalid square position")
	})

	t.Run("invalid intent", func(t *testing.T) {
		raw := json.RawMessage(`{"row":0,"col":0,"status":{"isPath":true,"isElectric":true}}`)
		ack := send(t, alice, "d", EventUpdateSquare, raw)
		assert.False(t, ack.Success)
		assert.Equal(t, maze.Square{}, hub.Snapshot().Grid[0][0])
	})

	t.Run("missing payload", func(t *testing.T) {
		ack := send(t, alice, "e", EventUpdateSquare, nil)
		assert.False(t, ack.Success)
		assert.Contains(t, ack.Error, "requires a payload")
	})
}

func TestHubResetAndStartOver(t *testing.T) {
	hub, url := startHub(t, nil)
	ws := dialHub(t, url)

	send(t, ws, "1", EventUpdateSquare, SquareUpdate{Row: 0, Col: 0, Status: maze.Intent{Action: maze.SetKind, Kind: maze.Path}})
	send(t, ws, "2", EventUpdateSquare, SquareUpdate{Row: 0, Col: 0, Status: maze.Intent{Action: maze.Reveal}})

	assert.True(t, send(t, ws, "3", EventStartOver, nil).Success)
	assert.Equal(t, maze.Square{IsPath: true}, hub.Snapshot().Grid[0][0])

	assert.True(t, send(t, ws, "4", EventResetMaze, nil).Success)
	assert.Equal(t, maze.NewGrid(8, 8), hub.Snapshot().Grid)
}

func TestHubLoadConfig(t *testing.T) {
	good := maze.NewGrid(8, 8)
	for r := range good {
		good[r][5].SetKind(maze.Path)
	}
	good[0][5].IsRevealed = true

	configs := fakeConfigs{
		"straight": good,
		"broken":   maze.NewGrid(8, 8),
		"small":    maze.NewGrid(4, 4),
	}
	hub, url := startHub(t, configs)
	alice := dialHub(t, url)
	bob := dialHub(t, url)

	ack := send(t, alice, "1", EventLoadConfig, LoadConfig{Name: "straight"})
	require.True(t, ack.Success, ack.Error)

	env := readEvent(t, bob, EventGameState)
	var state GameState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, good.Hidden(), state.Grid)
	assert.Equal(t, good.Hidden(), hub.Snapshot().Grid)

	ack = send(t, alice, "2", EventLoadConfig, LoadConfig{Name: "broken"})
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "Path too short")

	ack = send(t, alice, "3", EventLoadConfig, LoadConfig{Name: "missing"})
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "not found")

	ack = send(t, alice, "4", EventLoadConfig, LoadConfig{Name: "small"})
	assert.False(t, ack.Success)
}

func TestHubLoadConfigWithoutStore(t *testing.T) {
	_, url := startHub(t, nil)
	ws := dialHub(t, url)

	ack := send(t, ws, "1", EventLoadConfig, LoadConfig{Name: "anything"})
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "no configuration store")
}

func TestHubRejectsUnknownEvent(t *testing.T) {
	_, url := startHub(t, nil)
	ws := dialHub(t, url)

	ack := send(t, ws, "1", "explode", nil)
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, `unknown event "explode"`)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub, url := startHub(t, nil)
	ws := dialHub(t, url)

	hub.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	assert.Error(t, ws.ReadJSON(&env))
}

func TestHubRejectsClientAfterClose(t *testing.T) {
	hub := NewHub("test", NewGameState(8, 8), nil, nil)
	hub.Close()

	accepted := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	c := &conn{ws: <-accepted, send: make(chan Envelope, sendBuffer), playerID: "late"}

	assert.False(t, hub.addClient(c))
	assert.Zero(t, hub.ClientCount())

	// The send channel is closed so writePump exits straight away.
	_, open := <-c.send
	assert.False(t, open)

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = peer.ReadMessage()
	assert.Error(t, err)
}
