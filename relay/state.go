package relay

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Seednode/electricmaze/maze"
)

var (
	ErrTeamExists     = errors.New("team already exists")
	ErrTeamNotFound   = errors.New("team not found")
	ErrEmptyTeamName  = errors.New("team name must not be empty")
	ErrInvalidSquare  = errors.New("invalid square position")
	ErrShapeMismatch  = errors.New("grid dimensions do not match the session")
	ErrInvalidRequest = errors.New("invalid request")
)

// GameState is everything a session shares between its clients. It is not
// safe for concurrent use; a Hub serialises access to it.
type GameState struct {
	Grid        maze.Grid `json:"grid"`
	Teams       []string  `json:"teams"`
	CurrentTeam string    `json:"currentTeam"`
}

func NewGameState(rows, cols int) *GameState {
	return &GameState{
		Grid:  maze.NewGrid(rows, cols),
		Teams: []string{},
	}
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (s *GameState) Snapshot() GameState {
	return GameState{
		Grid:        s.Grid.Clone(),
		Teams:       append([]string{}, s.Teams...),
		CurrentTeam: s.CurrentTeam,
	}
}

// UpdateSquare applies intent to the square at p and returns the result.
func (s *GameState) UpdateSquare(p maze.Position, intent maze.Intent) (maze.Square, error) {
	if !s.Grid.InBounds(p) {
		return maze.Square{}, fmt.Errorf("%w: row %d, col %d", ErrInvalidSquare, p.Row, p.Col)
	}

	sq, err := intent.Apply(s.Grid[p.Row][p.Col])
	if err != nil {
		return maze.Square{}, err
	}
	s.Grid[p.Row][p.Col] = sq

	return sq, nil
}

func normalizeTeam(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyTeamName
	}
	return name, nil
}

// AddTeam appends a team. Adding an existing name fails with ErrTeamExists.
func (s *GameState) AddTeam(name string) (string, error) {
	name, err := normalizeTeam(name)
	if err != nil {
		return "", err
	}
	if slices.Contains(s.Teams, name) {
		return "", fmt.Errorf("%w: %q", ErrTeamExists, name)
	}
	s.Teams = append(s.Teams, name)

	return name, nil
}

// RemoveTeam drops a team, clearing the current team if it was selected.
func (s *GameState) RemoveTeam(name string) (string, error) {
	name, err := normalizeTeam(name)
	if err != nil {
		return "", err
	}

	i := slices.Index(s.Teams, name)
	if i < 0 {
		return "", fmt.Errorf("%w: %q", ErrTeamNotFound, name)
	}
	s.Teams = slices.Delete(s.Teams, i, i+1)
	if s.CurrentTeam == name {
		s.CurrentTeam = ""
	}

	return name, nil
}

func (s *GameState) SetCurrentTeam(name string) (string, error) {
	name, err := normalizeTeam(name)
	if err != nil {
		return "", err
	}
	if !slices.Contains(s.Teams, name) {
		return "", fmt.Errorf("%w: %q", ErrTeamNotFound, name)
	}
	s.CurrentTeam = name

	return name, nil
}

// ResetMaze clears the configuration: every square becomes hidden and neutral.
func (s *GameState) ResetMaze() {
	s.Grid = maze.NewGrid(s.Grid.Rows(), s.Grid.Cols())
}

// StartOver hides every square and keeps the configuration and teams.
func (s *GameState) StartOver() {
	s.Grid = s.Grid.Hidden()
}

// LoadGrid replaces the configuration with g, hidden. g must have the same
// dimensions as the current grid.
func (s *GameState) LoadGrid(g maze.Grid) error {
	if !g.Rectangular() || !s.Grid.SameShape(g) {
		return fmt.Errorf("%w: want %dx%d, got %dx%d", ErrShapeMismatch, s.Grid.Rows(), s.Grid.Cols(), g.Rows(), g.Cols())
	}
	s.Grid = g.Hidden()

	return nil
}
