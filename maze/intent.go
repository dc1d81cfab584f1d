package maze

import (
	"errors"
	"fmt"
)

// Action is the closed set of changes a client may request on a square.
type Action string

const (
	// Reveal shows the square to every team and marks it active.
	Reveal Action = "reveal"
	// Hide returns the square to its hidden state; its kind is kept.
	Hide Action = "hide"
	// Deactivate leaves the square revealed but no longer active.
	Deactivate Action = "deactivate"
	// SetKind retags the square as path, electric or neutral.
	SetKind Action = "set_kind"
	// Cycle advances the square's kind one step in the toggle cycle.
	Cycle Action = "cycle"
)

var (
	ErrUnknownAction = errors.New("unknown square action")
	ErrInvalidKind   = errors.New("invalid square kind")
)

// Intent is a validated request to change one square.
type Intent struct {
	Action Action `json:"action"`
	Kind   Kind   `json:"kind,omitempty"`
}

func (i Intent) Validate() error {
	switch i.Action {
	case Reveal, Hide, Deactivate, Cycle:
		if i.Kind != "" {
			return fmt.Errorf("%w: %q takes no kind", ErrInvalidKind, i.Action)
		}
		return nil
	case SetKind:
		if !i.Kind.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidKind, i.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, i.Action)
	}
}

// Apply returns s with the intent applied. s is left untouched on error.
func (i Intent) Apply(s Square) (Square, error) {
	if err := i.Validate(); err != nil {
		return s, err
	}

	switch i.Action {
	case Reveal:
		s.IsRevealed = true
		s.IsActive = true
	case Hide:
		s.IsRevealed = false
		s.IsActive = false
	case Deactivate:
		s.IsActive = false
	case SetKind:
		s.SetKind(i.Kind)
	case Cycle:
		s.SetKind(s.Kind().Next())
	}

	return s, nil
}
