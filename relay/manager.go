package relay

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/Seednode/electricmaze/maze"
)

// ManagerConfig sizes and wires every hub a Manager creates.
type ManagerConfig struct {
	Rows        int
	Cols        int
	IdleTimeout time.Duration
	Configs     ConfigSource
	Logf        Logger
}

// Manager holds a set of hubs keyed by game ID, so each session is isolated
// from the others.
type Manager struct {
	cfg ManagerConfig

	mu   sync.Mutex
	hubs map[string]*Hub
}

// NewManager starts a reaper that closes hubs idle for longer than
// cfg.IdleTimeout; it stops when ctx is done.
func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.Rows <= 0 {
		cfg.Rows = maze.DefaultRows
	}
	if cfg.Cols <= 0 {
		cfg.Cols = maze.DefaultCols
	}
	if cfg.Logf == nil {
		cfg.Logf = nopLogger
	}

	m := &Manager{
		cfg:  cfg,
		hubs: make(map[string]*Hub),
	}
	if cfg.IdleTimeout > 0 {
		go m.reaperLoop(ctx)
	}
	return m
}

// Hub returns the hub for gameID, creating and starting it if needed.
func (m *Manager) Hub(gameID string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[gameID]; ok {
		return hub
	}

	hub := NewHub(gameID, NewGameState(m.cfg.Rows, m.cfg.Cols), m.cfg.Configs, m.cfg.Logf)
	m.hubs[gameID] = hub
	go hub.Run()

	return hub
}

func (m *Manager) Lookup(gameID string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hub, ok := m.hubs[gameID]
	return hub, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.hubs)
}

const (
	gameIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	gameIDLength  = 8
)

// NewGameID generates a crypto-random game ID that no live hub is using.
func (m *Manager) NewGameID() string {
	for {
		buf := make([]byte, gameIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for i := range buf {
			buf[i] = gameIDLetters[int(buf[i])%len(gameIDLetters)]
		}
		id := string(buf)

		m.mu.Lock()
		_, exists := m.hubs[id]
		m.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// Reap closes and forgets every hub idle since before cutoff, returning how
// many were removed.
func (m *Manager) Reap(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, hub := range m.hubs {
		if hub.LastActive().Before(cutoff) {
			delete(m.hubs, id)
			go hub.Close()
			m.cfg.Logf("GAMES: Reaped idle game %s", id)
			n++
		}
	}
	return n
}

func (m *Manager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Reap(time.Now().Add(-m.cfg.IdleTimeout)); n > 0 {
				m.cfg.Logf("GAMES: %d game(s) still active", m.Len())
			}
		case <-ctx.Done():
			m.Close()
			return
		}
	}
}

// Close shuts down every hub.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, id)
	}
}
