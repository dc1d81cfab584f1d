package relay

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/electricmaze/maze"
)

func TestManagerHub(t *testing.T) {
	m := NewManager(context.Background(), ManagerConfig{Rows: 5, Cols: 6})
	defer m.Close()

	a := m.Hub("alpha")
	assert.Same(t, a, m.Hub("alpha"))
	assert.NotSame(t, a, m.Hub("beta"))
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, "alpha", a.ID())
	assert.Equal(t, maze.NewGrid(5, 6), a.Snapshot().Grid)

	_, ok := m.Lookup("gamma")
	assert.False(t, ok)
	got, ok := m.Lookup("beta")
	assert.True(t, ok)
	assert.Equal(t, "beta", got.ID())
}

func TestManagerDefaultsToEightByEight(t *testing.T) {
	m := NewManager(context.Background(), ManagerConfig{})
	defer m.Close()

	g := m.Hub("x").Snapshot().Grid
	assert.Equal(t, maze.DefaultRows, g.Rows())
	assert.Equal(t, maze.DefaultCols, g.Cols())
}

func TestManagerNewGameID(t *testing.T) {
	m := NewManager(context.Background(), ManagerConfig{})
	defer m.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := m.NewGameID()
		require.Len(t, id, gameIDLength)
		for _, r := range id {
			assert.Contains(t, gameIDLetters, string(r))
		}
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}

func TestManagerReap(t *testing.T) {
	m := NewManager(context.Background(), ManagerConfig{})
	defer m.Close()

	old := m.Hub("old")
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	m.Hub("fresh")

	assert.Equal(t, 1, m.Reap(cutoff))
	assert.Equal(t, 1, m.Len())

	_, ok := m.Lookup("old")
	assert.False(t, ok)
	_, ok = m.Lookup("fresh")
	assert.True(t, ok)

	// A reaped game ID starts over with a new hub.
	assert.NotSame(t, old, m.Hub("old"))
}

func TestManagerReaperStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, ManagerConfig{IdleTimeout: 20 * time.Millisecond})

	m.Hub("idle")
	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	m.Hub("late")
	cancel()
	require.Eventually(t, func() bool { return m.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestManagerReaperLogsActiveGames(t *testing.T) {
	var (
		mu     sync.Mutex
		logged []string
	)
	logf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(ctx, ManagerConfig{IdleTimeout: 20 * time.Millisecond, Logf: logf})

	m.Hub("idle")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Contains(logged, "GAMES: 0 game(s) still active")
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, logged, "GAMES: Reaped idle game idle")
}
