// Electric Maze
//
// A host secretly marks a path through a grid of squares; every other square
// is neutral or electric. Teams take turns stepping onto squares from the top
// row, and each step is revealed to everyone watching the same game.
//
// Features:
// - WebSockets per game ID: /maze/:gameid and /maze/:gameid/ws
// - Players identified by cookie (playerID)
// - Every move is relayed to all browsers in the game and acknowledged to the sender
// - Saved maze configurations can be loaded into a running game
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/electricmaze/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "electricmaze_id"

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id, nil
}

// gameID returns the :gameid parameter, writing a 400 if it is unusable.
func gameID(w http.ResponseWriter, ps httprouter.Params) (string, bool) {
	id := ps.ByName("gameid")
	if !gameIDPattern.MatchString(id) {
		http.Error(w, "invalid game id", http.StatusBadRequest)

		return "", false
	}
	return id, true
}

// serveWebSocket attaches the connection to the hub named by :gameid.
func serveWebSocket(cfg *Config, gm *relay.Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, ok := gameID(w, ps)
		if !ok {
			return
		}

		playerID, err := getOrSetPlayerID(w, r)
		if err != nil {
			errs <- err
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)

			return
		}

		hub := gm.Hub(id)

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "RELAY: Upgrade failed for %s from %s: %v", id, realIP(r), err)

			return
		}

		startTime := time.Now()

		hub.Serve(ws, playerID)

		logf(cfg, "RELAY: Client %s left %s after %s", playerID, id, time.Since(startTime).Round(time.Second))
	}
}

// serveQR generates a PNG QR code for the current game URL.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, ok := gameID(w, ps); !ok {
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveGamePage(cfg *Config, gm *relay.Manager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		id, ok := gameID(w, ps)
		if !ok {
			return
		}

		data, err := assets.ReadFile("assets/electric/index.html")
		if err != nil {
			errs <- err

			return
		}

		if _, err := getOrSetPlayerID(w, r); err != nil {
			errs <- err
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		players := "new game"
		if hub, ok := gm.Lookup(id); ok {
			players = fmt.Sprintf("%d connected", hub.ClientCount())
		}

		logf(cfg, "SERVE: Game %s [%s] (%s) to %s in %s",
			id,
			players,
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// redirectNewGame sends GET path to a freshly generated game.
func redirectNewGame(cfg *Config, path string, gm *relay.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := gm.NewGameID()
		logf(cfg, "GAMES: Created game %s%s/%s", cfg.prefix, path, id)
		http.Redirect(w, r, cfg.prefix+path+"/"+id, http.StatusTemporaryRedirect)
	}
}

// registerElectricMaze sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerElectricMaze(cfg *Config, path string, gm *relay.Manager, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, gm, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWebSocket(cfg, gm, errs))

	mux.GET(cfg.prefix+path+"/:gameid/qr", serveQR(cfg, errs))
}
