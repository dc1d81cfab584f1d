// Package retry runs remote operations with bounded attempts, exponential
// backoff and a per-attempt timeout.
package retry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy configures Do. Delay before retry n is
// min(InitialDelay * BackoffFactor^(n-1), MaxDelay).
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Timeout bounds each attempt. Zero disables the per-attempt race.
	Timeout time.Duration
}

// DefaultPolicy matches what browser clients use against the relay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		Timeout:       5 * time.Second,
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("invalid retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("invalid retry policy: initial delay must not be negative, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("invalid retry policy: max delay (%s) must be at least initial delay (%s)", p.MaxDelay, p.InitialDelay)
	}
	if p.BackoffFactor < 1 || math.IsNaN(p.BackoffFactor) || math.IsInf(p.BackoffFactor, 0) {
		return fmt.Errorf("invalid retry policy: backoff factor must be a finite number of at least 1, got %v", p.BackoffFactor)
	}
	if p.Timeout < 0 {
		return errors.New("invalid retry policy: timeout must not be negative")
	}
	return nil
}

// Delay returns the wait before retry n, counting from 1.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(n-1))
	if d >= float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}
