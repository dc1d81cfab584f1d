package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the connection state shown to players.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Status is a State plus, while reconnecting, the current attempt and the
// delay before it.
type Status struct {
	State   State         `json:"state"`
	Attempt int           `json:"attempt,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
	Err     string        `json:"error,omitempty"`
}

// EventType classifies a connection history entry.
type EventType string

const (
	EventConnect          EventType = "connect"
	EventDisconnect       EventType = "disconnect"
	EventReconnectAttempt EventType = "reconnect_attempt"
	EventReconnectSuccess EventType = "reconnect_success"
	EventReconnectFailure EventType = "reconnect_failure"
)

func (t EventType) Valid() bool {
	switch t {
	case EventConnect, EventDisconnect, EventReconnectAttempt, EventReconnectSuccess, EventReconnectFailure:
		return true
	}
	return false
}

// Event is one append-only connection history entry.
type Event struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Type          EventType     `json:"type"`
	AttemptNumber int           `json:"attemptNumber,omitempty"`
	Delay         time.Duration `json:"delay,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// EventSink stores connection events. The state machine only emits them.
type EventSink interface {
	RecordEvent(ctx context.Context, ev Event) error
}

var ErrInvalidTransition = errors.New("invalid connection state transition")

// StateMachine tracks one transport connection. It is safe for concurrent
// use; observers and the sink are called without the lock held.
type StateMachine struct {
	sink EventSink
	logf Logger
	now  func() time.Time

	mu        sync.Mutex
	status    Status
	observers []func(Status)
}

func NewStateMachine(sink EventSink, logf Logger) *StateMachine {
	if logf == nil {
		logf = nopLogger
	}
	return &StateMachine{
		sink:   sink,
		logf:   logf,
		now:    time.Now,
		status: Status{State: StateDisconnected},
	}
}

func (m *StateMachine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// OnChange registers fn to receive every new status.
func (m *StateMachine) OnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, fn)
}

// transition moves to next if the current state is one of from. ev, when
// non-nil, is stamped and emitted after the change.
func (m *StateMachine) transition(next Status, ev *Event, from ...State) error {
	m.mu.Lock()
	cur := m.status.State
	allowed := false
	for _, s := range from {
		if s == cur {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, cur, next.State)
	}
	m.status = next
	observers := append([]func(Status){}, m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}

	if ev != nil {
		m.emit(*ev)
	}
	return nil
}

func (m *StateMachine) emit(ev Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = m.now()

	if m.sink == nil {
		return
	}
	if err := m.sink.RecordEvent(context.Background(), ev); err != nil {
		m.logf("RELAY: Failed to record %s event: %v", ev.Type, err)
	}
}

// Connecting marks the first connection attempt.
func (m *StateMachine) Connecting() error {
	return m.transition(Status{State: StateConnecting}, nil, StateDisconnected)
}

// Connected records a successful connection, or a successful reconnection
// when called while reconnecting.
func (m *StateMachine) Connected() error {
	m.mu.Lock()
	cur := m.status
	m.mu.Unlock()

	if cur.State == StateReconnecting {
		return m.transition(Status{State: StateConnected},
			&Event{Type: EventReconnectSuccess, AttemptNumber: cur.Attempt},
			StateReconnecting)
	}
	return m.transition(Status{State: StateConnected}, &Event{Type: EventConnect}, StateConnecting)
}

// Lost records a transport disconnect; the transport is expected to start
// reconnecting. A first dial that never connected moves to reconnecting
// without a disconnect event.
func (m *StateMachine) Lost(err error) error {
	msg := "connection lost"
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	cur := m.status.State
	m.mu.Unlock()

	if cur == StateConnecting {
		return m.transition(Status{State: StateReconnecting, Err: msg}, nil, StateConnecting)
	}
	return m.transition(Status{State: StateReconnecting, Err: msg},
		&Event{Type: EventDisconnect, Error: msg},
		StateConnected)
}

// Attempt records reconnection attempt n, made after waiting delay.
func (m *StateMachine) Attempt(n int, delay time.Duration) error {
	m.mu.Lock()
	msg := m.status.Err
	m.mu.Unlock()

	return m.transition(Status{State: StateReconnecting, Attempt: n, Delay: delay, Err: msg},
		&Event{Type: EventReconnectAttempt, AttemptNumber: n, Delay: delay},
		StateReconnecting)
}

// Fail records that the transport gave up reconnecting. Only Reset leaves
// the failed state.
func (m *StateMachine) Fail(err error) error {
	m.mu.Lock()
	attempt := m.status.Attempt
	m.mu.Unlock()

	msg := "reconnection attempts exhausted"
	if err != nil {
		msg = err.Error()
	}
	return m.transition(Status{State: StateFailed, Attempt: attempt, Err: msg},
		&Event{Type: EventReconnectFailure, AttemptNumber: attempt, Error: msg},
		StateReconnecting)
}

// Reset returns to disconnected from any state.
func (m *StateMachine) Reset() {
	_ = m.transition(Status{State: StateDisconnected}, nil,
		StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateFailed)
}
