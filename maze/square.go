/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package maze holds the electric maze grid and the rules that decide
// whether a facilitator's configuration is a solvable maze.
package maze

import (
	"fmt"
)

// Kind is the configuration-time role of a square.
type Kind string

const (
	Neutral  Kind = "neutral"
	Path     Kind = "path"
	Electric Kind = "electric"
)

func (k Kind) Valid() bool {
	switch k {
	case Neutral, Path, Electric:
		return true
	}
	return false
}

// Next returns the kind that follows k in the facilitator's toggle cycle:
// path, electric, neutral, path.
func (k Kind) Next() Kind {
	switch k {
	case Path:
		return Electric
	case Electric:
		return Neutral
	default:
		return Path
	}
}

// Square is one cell of the grid. IsPath and IsElectric are never both set.
type Square struct {
	IsPath     bool `json:"isPath"`
	IsElectric bool `json:"isElectric"`
	IsRevealed bool `json:"isRevealed"`
	IsActive   bool `json:"isActive"`
}

func (s Square) Kind() Kind {
	switch {
	case s.IsPath:
		return Path
	case s.IsElectric:
		return Electric
	default:
		return Neutral
	}
}

func (s *Square) SetKind(k Kind) {
	s.IsPath = k == Path
	s.IsElectric = k == Electric
}

// Position addresses a square, 0-indexed from the top-left corner.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String renders the position 1-indexed, the way facilitators count rows.
func (p Position) String() string {
	return fmt.Sprintf("Row %d, Column %d", p.Row+1, p.Col+1)
}

// Grid is indexed [row][col], row 0 being the start row.
type Grid [][]Square

const (
	DefaultRows = 8
	DefaultCols = 8
)

// NewGrid returns a rows x cols grid of hidden neutral squares.
func NewGrid(rows, cols int) Grid {
	g := make(Grid, rows)
	for r := range g {
		g[r] = make([]Square, cols)
	}
	return g
}

func (g Grid) Rows() int {
	return len(g)
}

func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Rectangular reports whether g is non-empty and every row has the same
// number of columns.
func (g Grid) Rectangular() bool {
	if len(g) == 0 || len(g[0]) == 0 {
		return false
	}
	for _, row := range g {
		if len(row) != len(g[0]) {
			return false
		}
	}
	return true
}

func (g Grid) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < len(g) && p.Col >= 0 && p.Col < len(g[p.Row])
}

func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = append([]Square(nil), row...)
	}
	return out
}

// Hidden returns a copy of g with the configuration kept and every square
// hidden and inactive, as at the start of a round.
func (g Grid) Hidden() Grid {
	out := g.Clone()
	for r := range out {
		for c := range out[r] {
			out[r][c].IsRevealed = false
			out[r][c].IsActive = false
		}
	}
	return out
}

// SameShape reports whether g and other have identical dimensions.
func (g Grid) SameShape(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for r := range g {
		if len(g[r]) != len(other[r]) {
			return false
		}
	}
	return true
}

// Count returns the number of squares of kind k.
func (g Grid) Count(k Kind) int {
	n := 0
	for _, row := range g {
		for _, sq := range row {
			if sq.Kind() == k {
				n++
			}
		}
	}
	return n
}
