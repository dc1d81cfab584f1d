package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/electricmaze/maze"
)

const (
	sendBuffer     = 16
	writeWait      = 10 * time.Second
	configLoadWait = 5 * time.Second
)

// Logger receives verbose diagnostic lines.
type Logger func(format string, args ...any)

func nopLogger(string, ...any) {}

// ConfigSource supplies stored maze configurations to loadConfig requests.
type ConfigSource interface {
	LoadGrid(ctx context.Context, name string) (maze.Grid, error)
}

type conn struct {
	ws       *websocket.Conn
	send     chan Envelope
	playerID string
}

type request struct {
	conn *conn
	env  Envelope
}

// Hub is one game session. All mutation of its GameState happens on the
// goroutine running Run.
type Hub struct {
	id      string
	state   *GameState
	configs ConfigSource
	logf    Logger

	clients map[*conn]bool

	register chan *conn
	unreg    chan *conn
	requests chan request
	done     chan struct{}
	once     sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

// NewHub returns a hub owning state. configs may be nil, in which case
// loadConfig requests are rejected.
func NewHub(id string, state *GameState, configs ConfigSource, logf Logger) *Hub {
	if logf == nil {
		logf = nopLogger
	}

	now := time.Now()
	return &Hub{
		id:         id,
		state:      state,
		configs:    configs,
		logf:       logf,
		clients:    make(map[*conn]bool),
		register:   make(chan *conn),
		unreg:      make(chan *conn),
		requests:   make(chan request),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) ID() string {
	return h.id
}

func (h *Hub) LastActive() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Snapshot returns a copy of the session state.
func (h *Hub) Snapshot() GameState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.state.Snapshot()
}

// Run processes registrations and requests until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case req := <-h.requests:
			h.handle(req)

		case <-h.done:
			return
		}
	}
}

// addClient registers c and sends it the current state. Once Close has
// started, c is disconnected instead and addClient reports false.
func (h *Hub) addClient(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		close(c.send)
		_ = c.ws.Close()

		return false
	default:
	}

	h.lastActive = time.Now()
	h.clients[c] = true
	h.logf("RELAY: Client %s connected to %s (%d connected)", c.playerID, h.id, len(h.clients))

	env, err := newEnvelope(EventGameState, "", h.state.Snapshot())
	if err == nil {
		h.sendLocked(c, env)
	}

	return true
}

func (h *Hub) handle(req request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	broadcasts, err := h.applyLocked(req.env)
	if err != nil {
		h.logf("RELAY: %s rejected in %s: %v", req.env.Event, h.id, err)
	}

	for _, env := range broadcasts {
		h.broadcastLocked(env)
	}

	ack := Ack{Success: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	if env, err := newEnvelope(EventAck, req.env.ID, ack); err == nil {
		h.sendLocked(req.conn, env)
	}
}

func decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidRequest, env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRequest, env.Event, err)
	}
	return nil
}

func single(event string, data any) ([]Envelope, error) {
	env, err := newEnvelope(event, "", data)
	if err != nil {
		return nil, err
	}
	return []Envelope{env}, nil
}

// applyLocked mutates the session for one request and returns what to
// broadcast. The state is untouched when an error is returned.
func (h *Hub) applyLocked(env Envelope) ([]Envelope, error) {
	switch env.Event {
	case EventUpdateSquare:
		var u SquareUpdate
		if err := decode(env, &u); err != nil {
			return nil, err
		}
		sq, err := h.state.UpdateSquare(maze.Position{Row: u.Row, Col: u.Col}, u.Status)
		if err != nil {
			return nil, err
		}
		return single(EventSquareUpdated, SquareUpdated{Row: u.Row, Col: u.Col, Status: sq})

	case EventAddTeam, EventRemoveTeam, EventSetCurrentTeam:
		var name string
		if err := decode(env, &name); err != nil {
			return nil, err
		}
		return h.applyTeamLocked(env.Event, name)

	case EventResetMaze:
		h.state.ResetMaze()
		h.logf("GAMES: Maze reset in %s", h.id)
		return single(EventMazeReset, nil)

	case EventStartOver:
		h.state.StartOver()
		h.logf("GAMES: Round restarted in %s", h.id)
		return single(EventRoundRestarted, nil)

	case EventLoadConfig:
		var lc LoadConfig
		if err := decode(env, &lc); err != nil {
			return nil, err
		}
		return h.loadConfigLocked(lc.Name)

	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidRequest, env.Event)
	}
}

func (h *Hub) applyTeamLocked(event, name string) ([]Envelope, error) {
	var (
		team      string
		err       error
		broadcast string
	)

	switch event {
	case EventAddTeam:
		team, err = h.state.AddTeam(name)
		broadcast = EventTeamAdded
	case EventRemoveTeam:
		team, err = h.state.RemoveTeam(name)
		broadcast = EventTeamRemoved
	case EventSetCurrentTeam:
		team, err = h.state.SetCurrentTeam(name)
		broadcast = EventCurrentTeamChanged
	}
	if err != nil {
		return nil, err
	}

	h.logf("GAMES: %s %q in %s", event, team, h.id)

	return single(broadcast, team)
}

func (h *Hub) loadConfigLocked(name string) ([]Envelope, error) {
	if h.configs == nil {
		return nil, fmt.Errorf("%w: no configuration store", ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(context.Background(), configLoadWait)
	defer cancel()

	g, err := h.configs.LoadGrid(ctx, name)
	if err != nil {
		return nil, err
	}

	if res := maze.Validate(g); !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, res.Error)
	}

	if err := h.state.LoadGrid(g); err != nil {
		return nil, err
	}

	h.logf("GAMES: Loaded configuration %q into %s", name, h.id)

	return single(EventGameState, h.state.Snapshot())
}

// sendLocked queues env for c, dropping c if its buffer is full.
func (h *Hub) sendLocked(c *conn, env Envelope) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- env:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(env Envelope) {
	for c := range h.clients {
		h.sendLocked(c, env)
	}
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for c := range h.clients {
			close(c.send)
			_ = c.ws.Close()
			delete(h.clients, c)
		}
	})
}

// Serve attaches ws to the hub and blocks until the connection ends.
func (h *Hub) Serve(ws *websocket.Conn, playerID string) {
	c := &conn{
		ws:       ws,
		send:     make(chan Envelope, sendBuffer),
		playerID: playerID,
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = ws.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

func (c *conn) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.ws.Close()
	}()

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Event == "" {
			continue
		}

		select {
		case h.requests <- request{conn: c, env: env}:
		case <-h.done:
			return
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()

	for env := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(env); err != nil {
			return
		}
	}
}
