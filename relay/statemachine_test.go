package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) RecordEvent(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

func (s *memorySink) types() []EventType {
	var out []EventType
	for _, ev := range s.all() {
		out = append(out, ev.Type)
	}
	return out
}

func TestStateMachineReconnectCycle(t *testing.T) {
	sink := &memorySink{}
	m := NewStateMachine(sink, nil)

	var seen []State
	m.OnChange(func(s Status) { seen = append(seen, s.State) })

	assert.Equal(t, StateDisconnected, m.Status().State)

	require.NoError(t, m.Connecting())
	require.NoError(t, m.Connected())
	require.NoError(t, m.Lost(errors.New("read: connection reset")))
	assert.Equal(t, StateReconnecting, m.Status().State)

	require.NoError(t, m.Attempt(1, time.Second))
	st := m.Status()
	assert.Equal(t, Status{State: StateReconnecting, Attempt: 1, Delay: time.Second, Err: "read: connection reset"}, st)

	require.NoError(t, m.Attempt(2, 2*time.Second))
	require.NoError(t, m.Connected())
	assert.Equal(t, Status{State: StateConnected}, m.Status())

	assert.Equal(t, []State{
		StateConnecting, StateConnected, StateReconnecting,
		StateReconnecting, StateReconnecting, StateConnected,
	}, seen)

	events := sink.all()
	require.Len(t, events, 5)
	assert.Equal(t, []EventType{
		EventConnect, EventDisconnect, EventReconnectAttempt, EventReconnectAttempt, EventReconnectSuccess,
	}, sink.types())
	assert.Equal(t, "read: connection reset", events[1].Error)
	assert.Equal(t, 2, events[3].AttemptNumber)
	assert.Equal(t, 2*time.Second, events[3].Delay)
	assert.Equal(t, 2, events[4].AttemptNumber)

	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestStateMachineFailure(t *testing.T) {
	sink := &memorySink{}
	m := NewStateMachine(sink, nil)

	require.NoError(t, m.Connecting())
	require.NoError(t, m.Lost(nil))
	require.NoError(t, m.Attempt(1, time.Millisecond))
	require.NoError(t, m.Fail(errors.New("dial refused")))

	st := m.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, 1, st.Attempt)

	// Only a reset leaves the failed state.
	assert.ErrorIs(t, m.Connecting(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Connected(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Attempt(2, time.Millisecond), ErrInvalidTransition)

	m.Reset()
	assert.Equal(t, StateDisconnected, m.Status().State)
	require.NoError(t, m.Connecting())

	assert.Equal(t, []EventType{EventReconnectAttempt, EventReconnectFailure}, sink.types())
	assert.Equal(t, "dial refused", sink.all()[1].Error)
}

func TestStateMachineFirstDialFailure(t *testing.T) {
	sink := &memorySink{}
	m := NewStateMachine(sink, nil)

	require.NoError(t, m.Connecting())
	require.NoError(t, m.Lost(errors.New("dial tcp: connection refused")))

	st := m.Status()
	assert.Equal(t, StateReconnecting, st.State)
	assert.Equal(t, "dial tcp: connection refused", st.Err)
	assert.Empty(t, sink.all())

	require.NoError(t, m.Attempt(1, time.Millisecond))
	require.NoError(t, m.Connected())

	assert.Equal(t, []EventType{EventReconnectAttempt, EventReconnectSuccess}, sink.types())
}

func TestStateMachineInvalidTransitions(t *testing.T) {
	sink := &memorySink{}
	m := NewStateMachine(sink, nil)

	assert.ErrorIs(t, m.Connected(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Lost(nil), ErrInvalidTransition)
	assert.ErrorIs(t, m.Attempt(1, 0), ErrInvalidTransition)
	assert.ErrorIs(t, m.Fail(nil), ErrInvalidTransition)

	require.NoError(t, m.Connecting())
	assert.ErrorIs(t, m.Connecting(), ErrInvalidTransition)

	assert.Empty(t, sink.all())
	assert.Equal(t, StateConnecting, m.Status().State)
}

type failingSink struct{}

func (failingSink) RecordEvent(context.Context, Event) error {
	return errors.New("disk full")
}

func TestStateMachineSinkErrorsDoNotBlockTransitions(t *testing.T) {
	var logged []string
	m := NewStateMachine(failingSink{}, func(format string, args ...any) {
		logged = append(logged, format)
	})

	require.NoError(t, m.Connecting())
	require.NoError(t, m.Connected())
	assert.Equal(t, StateConnected, m.Status().State)
	assert.Len(t, logged, 1)
}

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{EventConnect, EventDisconnect, EventReconnectAttempt, EventReconnectSuccess, EventReconnectFailure} {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, EventType("reconnect").Valid())
}
