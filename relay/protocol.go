// Package relay keeps the authoritative state of each electric maze session
// and rebroadcasts every change to the browsers taking part in it.
//
// Clients send named requests over a WebSocket and receive an ack carrying
// the same id; state changes are broadcast to every connected client.
package relay

import (
	"encoding/json"

	"github.com/Seednode/electricmaze/maze"
)

// Requests (client to server).
const (
	EventUpdateSquare   = "updateSquare"
	EventAddTeam        = "addTeam"
	EventRemoveTeam     = "removeTeam"
	EventSetCurrentTeam = "setCurrentTeam"
	EventResetMaze      = "resetMaze"
	EventStartOver      = "startOver"
	EventLoadConfig     = "loadConfig"
)

// Broadcasts (server to client).
const (
	EventAck                = "ack"
	EventGameState          = "gameState"
	EventSquareUpdated      = "squareUpdated"
	EventTeamAdded          = "teamAdded"
	EventTeamRemoved        = "teamRemoved"
	EventCurrentTeamChanged = "currentTeamChanged"
	EventMazeReset          = "mazeReset"
	EventRoundRestarted     = "roundRestarted"
)

// Envelope is the frame exchanged in both directions. ID is set on requests
// and echoed on their ack.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ack answers a single request.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type SquareUpdate struct {
	Row    int         `json:"row"`
	Col    int         `json:"col"`
	Status maze.Intent `json:"status"`
}

type SquareUpdated struct {
	Row    int         `json:"row"`
	Col    int         `json:"col"`
	Status maze.Square `json:"status"`
}

type LoadConfig struct {
	Name string `json:"name"`
}

func newEnvelope(event, id string, data any) (Envelope, error) {
	env := Envelope{Event: event, ID: id}
	if data == nil {
		return env, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw

	return env, nil
}
