package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/Seednode/electricmaze/maze"
	"github.com/Seednode/electricmaze/retry"
)

var (
	ErrDisconnected = errors.New("relay connection lost")
	ErrFailed       = errors.New("relay connection failed, reset required")
	ErrClosed       = errors.New("relay client closed")
)

// RejectedError is a request the relay refused. It is never retried.
type RejectedError struct {
	Event  string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay rejected %s: %s", e.Event, e.Reason)
}

// DefaultReconnectPolicy mirrors the browser client: five attempts, one to
// five seconds apart.
func DefaultReconnectPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

type ackResult struct {
	ack Ack
	err error
}

// Client talks to a relay hub. The transport reconnects on its own; each
// request is retried on top of that according to the request policy.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	requests  retry.Policy
	reconnect retry.Policy
	sink      EventSink
	onMessage func(Envelope)
	observer  func(retry.Attempt)
	logf      Logger

	machine *StateMachine
	coord   *retry.Coordinator

	mu      sync.Mutex
	ws      *websocket.Conn
	notify  chan struct{}
	pending map[string]chan ackResult
	running bool
	failed  bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	writeMu sync.Mutex
}

type ClientOption func(*Client)

func WithRequestPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.requests = p }
}

func WithReconnectPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.reconnect = p }
}

// WithEventSink records connection history, typically in the store.
func WithEventSink(sink EventSink) ClientOption {
	return func(c *Client) { c.sink = sink }
}

// WithMessageHandler receives every broadcast on the client's read
// goroutine. It must not block.
func WithMessageHandler(fn func(Envelope)) ClientOption {
	return func(c *Client) { c.onMessage = fn }
}

// WithAttemptObserver reports failed request attempts.
func WithAttemptObserver(fn func(retry.Attempt)) ClientOption {
	return func(c *Client) { c.observer = fn }
}

func WithClientLogger(logf Logger) ClientOption {
	return func(c *Client) { c.logf = logf }
}

func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// NewClient returns a disconnected client for the WebSocket at url. No
// connection is made until Connect or the first request.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:       url,
		dialer:    websocket.DefaultDialer,
		requests:  retry.DefaultPolicy(),
		reconnect: DefaultReconnectPolicy(),
		logf:      nopLogger,
		notify:    make(chan struct{}),
		pending:   make(map[string]chan ackResult),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.reconnect.Validate(); err != nil {
		return nil, fmt.Errorf("reconnect policy: %w", err)
	}

	coord, err := retry.NewCoordinator(c.requests, c.observer)
	if err != nil {
		return nil, fmt.Errorf("request policy: %w", err)
	}
	c.coord = coord
	c.machine = NewStateMachine(c.sink, c.logf)

	return c, nil
}

func (c *Client) Status() Status {
	return c.machine.Status()
}

// OnStatus registers fn to receive every connection state change.
func (c *Client) OnStatus(fn func(Status)) {
	c.machine.OnChange(fn)
}

// signalLocked wakes every request waiting for a connection change.
func (c *Client) signalLocked() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// Connect starts the transport loop if it is not already running.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.failed || c.closed {
		return
	}
	if err := c.machine.Connecting(); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel

	c.wg.Add(1)
	go c.loop(ctx)
}

func (c *Client) loop(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			if !c.attach(ctx, ws) {
				return
			}
			_ = c.machine.Connected()
			if attempt > 0 {
				c.logf("RELAY: Reconnected to %s after %d attempt(s)", c.url, attempt)
			}
			attempt = 0

			err = c.readLoop(ws)
			c.detach(ws)
		}

		if ctx.Err() != nil {
			return
		}

		if attempt == 0 {
			_ = c.machine.Lost(err)
		}

		attempt++
		if attempt > c.reconnect.MaxAttempts {
			c.mu.Lock()
			c.failed = true
			c.running = false
			c.signalLocked()
			c.mu.Unlock()

			_ = c.machine.Fail(fmt.Errorf("gave up after %d reconnection attempts: %w", c.reconnect.MaxAttempts, err))
			c.logf("RELAY: Giving up on %s: %v", c.url, err)
			return
		}

		delay := c.reconnect.Delay(attempt)
		_ = c.machine.Attempt(attempt, delay)
		c.logf("RELAY: Reconnecting to %s in %s (attempt %d/%d)", c.url, delay, attempt, c.reconnect.MaxAttempts)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// attach installs ws as the live connection. A dial that finishes after
// Close is discarded and attach reports false.
func (c *Client) attach(ctx context.Context, ws *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || ctx.Err() != nil {
		_ = ws.Close()

		return false
	}

	c.ws = ws
	c.signalLocked()

	return true
}

// detach drops ws and fails every request still waiting for an ack on it.
func (c *Client) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	for id, ch := range c.pending {
		select {
		case ch <- ackResult{err: ErrDisconnected}:
		default:
		}
		delete(c.pending, id)
	}
	c.signalLocked()
	c.mu.Unlock()

	_ = ws.Close()
}

func (c *Client) readLoop(ws *websocket.Conn) error {
	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return err
		}

		if env.Event == EventAck {
			c.resolve(env)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(env)
		}
	}
}

func (c *Client) resolve(env Envelope) {
	var res ackResult
	if err := json.Unmarshal(env.Data, &res.ack); err != nil {
		res.err = fmt.Errorf("malformed ack: %w", err)
	}

	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	if ok {
		ch <- res
	}
}

// waitConn blocks until a connection is live, the client fails or ctx ends.
func (c *Client) waitConn(ctx context.Context) (*websocket.Conn, error) {
	for {
		c.mu.Lock()
		ws, failed, closed, notify := c.ws, c.failed, c.closed, c.notify
		c.mu.Unlock()

		switch {
		case closed:
			return nil, retry.Permanent(ErrClosed)
		case failed:
			return nil, retry.Permanent(ErrFailed)
		case ws != nil:
			return ws, nil
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) write(ws *websocket.Conn, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(env)
}

// Request sends event with payload and waits for the relay's ack, retrying
// per the request policy. A refusal by the relay returns *RejectedError.
func (c *Client) Request(ctx context.Context, event string, payload any) error {
	base, err := newEnvelope(event, "", payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.Connect()

	return c.coord.Execute(ctx, event, func(ctx context.Context) error {
		ws, err := c.waitConn(ctx)
		if err != nil {
			return err
		}

		env := base
		env.ID = uuid.NewString()
		ch := make(chan ackResult, 1)

		c.mu.Lock()
		c.pending[env.ID] = ch
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			delete(c.pending, env.ID)
			c.mu.Unlock()
		}()

		if err := c.write(ws, env); err != nil {
			return err
		}

		select {
		case res := <-ch:
			if res.err != nil {
				return res.err
			}
			if !res.ack.Success {
				return retry.Permanent(&RejectedError{Event: event, Reason: res.ack.Error})
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (c *Client) UpdateSquare(ctx context.Context, row, col int, intent maze.Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	return c.Request(ctx, EventUpdateSquare, SquareUpdate{Row: row, Col: col, Status: intent})
}

func (c *Client) AddTeam(ctx context.Context, name string) error {
	return c.Request(ctx, EventAddTeam, name)
}

func (c *Client) RemoveTeam(ctx context.Context, name string) error {
	return c.Request(ctx, EventRemoveTeam, name)
}

func (c *Client) SetCurrentTeam(ctx context.Context, name string) error {
	return c.Request(ctx, EventSetCurrentTeam, name)
}

func (c *Client) ResetMaze(ctx context.Context) error {
	return c.Request(ctx, EventResetMaze, nil)
}

func (c *Client) StartOver(ctx context.Context) error {
	return c.Request(ctx, EventStartOver, nil)
}

func (c *Client) LoadConfig(ctx context.Context, name string) error {
	return c.Request(ctx, EventLoadConfig, LoadConfig{Name: name})
}

// Close stops the transport and rejects further requests. The state returns
// to disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, ws := c.cancel, c.ws
	c.cancel = nil
	c.running = false
	c.closed = true
	c.signalLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if ws != nil {
		c.writeMu.Lock()
		err = multierr.Combine(
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second)),
			ws.Close(),
		)
		c.writeMu.Unlock()
	}

	c.wg.Wait()
	c.machine.Reset()

	return err
}

// Reset clears a failed or closed client so the next request reconnects.
func (c *Client) Reset() error {
	err := c.Close()

	c.mu.Lock()
	c.failed = false
	c.closed = false
	c.mu.Unlock()

	return err
}
