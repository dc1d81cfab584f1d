package main

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/relay"
	"github.com/Seednode/electricmaze/retry"
)

func TestNewGameRedirect(t *testing.T) {
	s := newTestServer(t)

	client := s.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := client.Get(s.URL + "/maze")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/maze/"), loc)
	assert.Regexp(t, `^[A-Za-z0-9]{8}$`, strings.TrimPrefix(loc, "/maze/"))
}

func TestGamePage(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/maze/abc123", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == playerCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Len(t, cookie.Value, 32)

	resp = s.do(t, http.MethodGet, "/maze/not.valid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGameQR(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/maze/abc123/qr", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestGameRelay(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.store.SaveConfig(ctx, "column", columnMaze(2))
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/maze/abc123/ws"

	c, err := relay.NewClient(url, relay.WithRequestPolicy(retry.Policy{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      20 * time.Millisecond,
		BackoffFactor: 2,
		Timeout:       2 * time.Second,
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.AddTeam(ctx, "Blue"))
	require.NoError(t, c.LoadConfig(ctx, "column"))
	require.NoError(t, c.UpdateSquare(ctx, 0, 2, maze.Intent{Action: maze.Reveal}))

	err = c.LoadConfig(ctx, "missing")
	var rejected *relay.RejectedError
	require.ErrorAs(t, err, &rejected)

	hub, ok := s.manager.Lookup("abc123")
	require.True(t, ok)

	state := hub.Snapshot()
	assert.Equal(t, []string{"Blue"}, state.Teams)
	assert.True(t, state.Grid[5][2].IsPath)
	assert.False(t, state.Grid[5][2].IsRevealed)
	assert.True(t, state.Grid[0][2].IsRevealed)
}
