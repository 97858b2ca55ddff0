// Package channel owns the WebSocket connection to the chat backend: one
// live socket per authenticated session, reconnect with exponential backoff,
// and delivery of inbound frames to a single consumer. Frames are never
// transformed here beyond JSON validation.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// State of the channel.
type State int

// Channel states. From Closed, a non-caller-initiated close schedules a
// reconnect while a session is still active.
const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventType classifies channel events.
type EventType int

// Event kinds delivered to the consumer.
const (
	EventConnected EventType = iota
	EventDisconnected
	EventFrame
	EventError
	EventGaveUp
)

// Event is one typed occurrence on the channel. Frame is set for EventFrame,
// Err for EventDisconnected/EventError/EventGaveUp.
type Event struct {
	Type    EventType
	Frame   json.RawMessage
	Err     error
	Attempt int
}

var (
	// ErrNotOpen is recorded when a send is attempted while the channel is
	// not in the open state.
	ErrNotOpen = errors.New("channel is not open")

	// ErrNoSession is returned by Reconnect when Connect was never called.
	ErrNoSession = errors.New("no session to reconnect")
)

// Options tune the channel. Zero values fall back to defaults.
type Options struct {
	Backoff      Backoff
	MaxAttempts  int
	WriteTimeout time.Duration
	EventBuffer  int
	HistorySize  int
}

func (o Options) withDefaults() Options {
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = time.Second
	}
	if o.Backoff.Max <= 0 {
		o.Backoff.Max = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 32
	}
	return o
}

// Channel manages the lifetime of the socket.
type Channel struct {
	dialer  Dialer
	baseURL string
	opts    Options

	mu         sync.Mutex
	state      State
	conn       Conn
	token      string
	userID     string
	attempt    int
	manual     bool // close was caller-initiated
	gen        int  // connection generation, guards stale dials and loops
	readCancel context.CancelFunc
	retryTimer *time.Timer
	lastErr    error

	events  chan Event
	history *eventRing
}

// New creates a channel manager for the given ws(s) endpoint.
func New(dialer Dialer, baseURL string, opts Options) *Channel {
	opts = opts.withDefaults()
	return &Channel{
		dialer:  dialer,
		baseURL: baseURL,
		opts:    opts,
		state:   StateIdle,
		events:  make(chan Event, opts.EventBuffer),
		history: newEventRing(opts.HistorySize),
	}
}

// Events returns the stream of channel events. There is one consumer; when
// it falls behind, the oldest undelivered events are dropped.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State returns the current channel state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent recorded error, if any.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Recent returns the recorded event history, oldest first.
func (c *Channel) Recent() []Entry {
	return c.history.Snapshot()
}

// Connect opens the socket for the given session. It is a no-op while a
// connection attempt is in flight or a socket is already open.
func (c *Channel) Connect(ctx context.Context, token, userID string) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.userID = userID
	c.manual = false
	c.attempt = 0
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	target := c.connectURL()
	c.mu.Unlock()

	return c.establish(ctx, gen, target)
}

// Reconnect force-closes any existing socket, clears the attempt counter,
// and retries immediately. It remains available after automatic reconnection
// has been abandoned.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.stopRetryLocked()
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	old := c.conn
	c.conn = nil
	c.manual = false
	c.attempt = 0
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	target := c.connectURL()
	c.history.Record("manual reconnect")
	c.mu.Unlock()

	if old != nil {
		_ = old.Close("manual reconnect")
	}
	return c.establish(ctx, gen, target)
}

// Disconnect closes cleanly and suppresses any pending auto-reconnect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.gen++
	c.stopRetryLocked()
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.history.Record("disconnected by client")
	userID := c.userID
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close("client disconnect")
	}
	c.emit(Event{Type: EventDisconnected})
	slog.Info("channel disconnected", "user_id", userID)
}

// Send serializes and transmits the payload if and only if the channel is
// open, returning whether the frame was handed to the socket.
func (c *Channel) Send(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode outbound frame", "error", err)
		return false
	}

	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateOpen || conn == nil {
		c.setLastErr(ErrNotOpen)
		c.history.Record("send dropped: channel not open")
		slog.Warn("cannot send, channel not open", "state", state.String())
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		c.setLastErr(err)
		c.history.Record("send failed: " + err.Error())
		slog.Warn("send failed", "error", err)
		return false
	}
	return true
}

func (c *Channel) connectURL() string {
	return c.baseURL + "?token=" + url.QueryEscape(c.token)
}

// establish performs one dial. The generation captured before unlocking
// detects a Disconnect or Reconnect that raced the dial.
func (c *Channel) establish(ctx context.Context, gen int, target string) error {
	conn, err := c.dialer.Dial(ctx, target)

	c.mu.Lock()
	if gen != c.gen || c.manual {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close("superseded")
		}
		return nil
	}
	if err != nil {
		c.state = StateClosed
		c.lastErr = err
		c.history.Record("connect failed: " + err.Error())
		c.emit(Event{Type: EventDisconnected, Err: err})
		c.scheduleRetryLocked()
		c.mu.Unlock()
		return err
	}

	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	readCtx, cancel := context.WithCancel(context.Background())
	c.readCancel = cancel
	c.history.Record("connected")
	userID := c.userID
	c.mu.Unlock()

	c.emit(Event{Type: EventConnected})
	slog.Info("channel connected", "user_id", userID)
	go c.readLoop(readCtx, conn)
	return nil
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.handleReadError(conn, err)
			return
		}

		// A frame that is not valid JSON is recorded and skipped; the
		// channel itself stays up.
		if !json.Valid(data) {
			parseErr := fmt.Errorf("invalid JSON frame (%d bytes)", len(data))
			c.setLastErr(parseErr)
			c.history.Record("frame parse error")
			slog.Warn("dropping unparseable frame", "bytes", len(data))
			c.emit(Event{Type: EventError, Err: parseErr})
			continue
		}

		c.emit(Event{Type: EventFrame, Frame: json.RawMessage(data)})
	}
}

func (c *Channel) handleReadError(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection replaced this one while the read was blocked.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	c.history.Record("connection lost: " + err.Error())
	slog.Warn("channel connection lost", "error", err, "user_id", c.userID)
	c.emit(Event{Type: EventDisconnected, Err: err})
	c.scheduleRetryLocked()
	c.mu.Unlock()
}

// scheduleRetryLocked arms the backoff timer. Caller holds c.mu.
func (c *Channel) scheduleRetryLocked() {
	if c.attempt >= c.opts.MaxAttempts {
		c.history.Record("reconnect abandoned")
		slog.Error("reconnect attempts exhausted", "attempts", c.attempt, "user_id", c.userID)
		c.emit(Event{Type: EventGaveUp, Err: c.lastErr, Attempt: c.attempt})
		return
	}

	delay := c.opts.Backoff.Delay(c.attempt)
	c.attempt++
	attempt := c.attempt
	c.history.Record(fmt.Sprintf("reconnect %d in %s", attempt, delay))
	slog.Info("scheduling reconnect", "attempt", attempt, "delay", delay)
	c.retryTimer = time.AfterFunc(delay, c.retry)
}

func (c *Channel) retry() {
	c.mu.Lock()
	if c.manual || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	target := c.connectURL()
	c.mu.Unlock()

	// Errors reschedule through establish itself.
	_ = c.establish(context.Background(), gen, target)
}

func (c *Channel) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Channel) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// emit delivers without blocking the read loop; when the consumer lags, the
// oldest buffered event is dropped in favor of the new one.
func (c *Channel) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case <-c.events:
			slog.Warn("event buffer full, dropping oldest event")
		default:
		}
	}
}
