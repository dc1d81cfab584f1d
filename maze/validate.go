package maze

import (
	"fmt"
	"strings"
)

// Rule names the check a grid failed.
type Rule string

const (
	RuleShape         Rule = "shape"
	RuleMinLength     Rule = "min_length"
	RuleMaxDensity    Rule = "max_density"
	RuleMissingStart  Rule = "missing_start"
	RuleMissingEnd    Rule = "missing_end"
	RuleIsolated      Rule = "isolated"
	RuleStartFanOut   Rule = "start_fan_out"
	RuleEndFanOut     Rule = "end_fan_out"
	RuleConnectivity  Rule = "connectivity"
	RuleElectricRatio Rule = "electric_ratio"
)

const (
	MinPathSquares      = 3
	MaxPathDensity      = 0.5
	MaxBoundarySquares  = 3
	MaxElectricPerPath  = 2
	invalidMazeHeadline = "Invalid Maze: "
)

// Result is the outcome of Validate. Error and Rule are set only when Valid
// is false; Isolated is set only for RuleIsolated.
type Result struct {
	Valid    bool       `json:"valid"`
	Error    string     `json:"error,omitempty"`
	Rule     Rule       `json:"rule,omitempty"`
	Isolated []Position `json:"isolated,omitempty"`
}

func invalid(rule Rule, format string, args ...any) Result {
	return Result{
		Rule:  rule,
		Error: invalidMazeHeadline + fmt.Sprintf(format, args...),
	}
}

// Validate checks that g is a playable maze. Rules are evaluated in a fixed
// order and the first failure is reported. g is never modified.
func Validate(g Grid) Result {
	if !g.Rectangular() {
		return invalid(RuleShape, "Grid must have at least one row and one column, and every row must have the same number of columns.")
	}

	rows := g.Rows()
	paths := g.Count(Path)

	if paths < MinPathSquares {
		return invalid(RuleMinLength, "Path too short. Need at least %d connected path squares for a meaningful challenge.", MinPathSquares)
	}

	if float64(paths) > float64(rows*g.Cols())*MaxPathDensity {
		return invalid(RuleMaxDensity, "Too many path squares (%d of %d). Path should be no more than %d%% of the grid to maintain challenge.",
			paths, rows*g.Cols(), int(MaxPathDensity*100))
	}

	starts := pathColumns(g[0])
	ends := pathColumns(g[rows-1])

	if len(starts) == 0 {
		return invalid(RuleMissingStart, "No starting point found. Add at least one path square in the top row (row 1) to define where teams begin.")
	}
	if len(ends) == 0 {
		return invalid(RuleMissingEnd, "No ending point found. Add at least one path square in the bottom row (row %d) to define the goal.", rows)
	}

	if isolated := isolatedSquares(g, paths); len(isolated) > 0 {
		names := make([]string, len(isolated))
		for i, p := range isolated {
			names[i] = p.String()
		}
		res := invalid(RuleIsolated, "Found %d isolated path square(s) at: %s. Every path square must touch another path square horizontally or vertically.",
			len(isolated), strings.Join(names, ", "))
		res.Isolated = isolated
		return res
	}

	if len(starts) > MaxBoundarySquares {
		return invalid(RuleStartFanOut, "Too many starting points (%d in top row). Limit to %d or fewer start squares so teams know where to begin.",
			len(starts), MaxBoundarySquares)
	}
	if len(ends) > MaxBoundarySquares {
		return invalid(RuleEndFanOut, "Too many ending points (%d in bottom row). Limit to %d or fewer end squares to keep the goal clear.",
			len(ends), MaxBoundarySquares)
	}

	if !connected(g, starts, ends) {
		return invalid(RuleConnectivity, "No continuous path connects start to finish. Path squares must form an unbroken chain from the top row to the bottom row without diagonal steps.")
	}

	if electric := g.Count(Electric); electric > paths*MaxElectricPerPath {
		return invalid(RuleElectricRatio, "Too many electric squares (%d) relative to path squares (%d). Keep the ratio at or below %d:1 electric to path squares.",
			electric, paths, MaxElectricPerPath)
	}

	return Result{Valid: true}
}

func pathColumns(row []Square) []int {
	var cols []int
	for c, sq := range row {
		if sq.IsPath {
			cols = append(cols, c)
		}
	}
	return cols
}

var directions = [4]Position{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func isPathAt(g Grid, p Position) bool {
	return g.InBounds(p) && g[p.Row][p.Col].IsPath
}

// isolatedSquares lists path squares with no orthogonal path neighbour.
// A lone path square on the grid is never reported.
func isolatedSquares(g Grid, paths int) []Position {
	if paths <= 1 {
		return nil
	}

	var out []Position
	for r, row := range g {
		for c, sq := range row {
			if !sq.IsPath {
				continue
			}
			alone := true
			for _, d := range directions {
				if isPathAt(g, Position{r + d.Row, c + d.Col}) {
					alone = false
					break
				}
			}
			if alone {
				out = append(out, Position{r, c})
			}
		}
	}
	return out
}

// connected reports whether any start column in the top row reaches any end
// column in the bottom row.
func connected(g Grid, starts, ends []int) bool {
	last := g.Rows() - 1
	for _, s := range starts {
		for _, e := range ends {
			if reachable(g, Position{0, s}, Position{last, e}) {
				return true
			}
		}
	}
	return false
}

// reachable walks path squares depth-first with an explicit stack.
func reachable(g Grid, from, to Position) bool {
	if !isPathAt(g, from) || !isPathAt(g, to) {
		return false
	}

	visited := map[Position]bool{from: true}
	stack := []Position{from}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == to {
			return true
		}

		for _, d := range directions {
			next := Position{cur.Row + d.Row, cur.Col + d.Col}
			if visited[next] || !isPathAt(g, next) {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
		}
	}

	return false
}
