package channel

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	frames chan []byte
	errs   chan error

	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 8),
		errs:   make(chan error, 1),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	targets []string
}

func (d *fakeDialer) Dial(_ context.Context, target string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, target)
	if len(d.results) == 0 {
		return nil, errors.New("no scripted dial result")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func fastOptions() Options {
	return Options{
		Backoff:     Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond},
		MaxAttempts: 3,
	}
}

func waitEvent(t *testing.T, ch *Channel, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %d", want)
		}
	}
}

func TestChannel_ConnectOpensAndDeliversFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)
	if ch.State() != StateOpen {
		t.Errorf("state = %s, want open", ch.State())
	}

	conn.frames <- []byte(`{"conversationId":"c1","content":"hi"}`)
	ev := waitEvent(t, ch, EventFrame)
	var decoded map[string]any
	if err := json.Unmarshal(ev.Frame, &decoded); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if decoded["content"] != "hi" {
		t.Errorf("frame content = %v, want hi", decoded["content"])
	}
}

func TestChannel_ConnectEscapesToken(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "a b&c", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	target := dialer.targets[0]
	if !strings.Contains(target, "token=a+b%26c") {
		t.Errorf("token not escaped in %q", target)
	}
}

func TestChannel_ConnectNoOpWhileOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("second Connect errored: %v", err)
	}
	if dialer.dialCount() != 1 {
		t.Errorf("dial count = %d, want 1", dialer.dialCount())
	}
}

func TestChannel_InvalidFrameKeepsChannelOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	conn.frames <- []byte("not json at all")
	waitEvent(t, ch, EventError)

	if ch.State() != StateOpen {
		t.Errorf("state after parse error = %s, want open", ch.State())
	}

	// The next valid frame still comes through.
	conn.frames <- []byte(`{"conversationId":"c1"}`)
	waitEvent(t, ch, EventFrame)
}

func TestChannel_ReconnectsAfterReadError(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: first}, {conn: second}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	first.errs <- errors.New("connection reset")
	waitEvent(t, ch, EventDisconnected)
	waitEvent(t, ch, EventConnected)

	if ch.State() != StateOpen {
		t.Errorf("state after reconnect = %s, want open", ch.State())
	}
	if dialer.dialCount() != 2 {
		t.Errorf("dial count = %d, want 2", dialer.dialCount())
	}
}

func TestChannel_GivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{} // every dial fails
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	err := ch.Connect(context.Background(), "tok", "u1")
	if err == nil {
		t.Fatal("expected initial connect error")
	}

	ev := waitEvent(t, ch, EventGaveUp)
	if ev.Attempt != 3 {
		t.Errorf("gave up after %d attempts, want 3", ev.Attempt)
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %s, want closed", ch.State())
	}
}

func TestChannel_ManualReconnectAfterGiveUp(t *testing.T) {
	dialer := &fakeDialer{}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	_ = ch.Connect(context.Background(), "tok", "u1")
	waitEvent(t, ch, EventGaveUp)

	conn := newFakeConn()
	dialer.mu.Lock()
	dialer.results = []dialResult{{conn: conn}}
	dialer.mu.Unlock()

	if err := ch.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)
	if ch.State() != StateOpen {
		t.Errorf("state = %s, want open", ch.State())
	}
}

func TestChannel_ReconnectWithoutSession(t *testing.T) {
	ch := New(&fakeDialer{}, "ws://host/ws/chat", fastOptions())
	if err := ch.Reconnect(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Reconnect error = %v, want ErrNoSession", err)
	}
}

func TestChannel_DisconnectSuppressesReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	ch.Disconnect()
	waitEvent(t, ch, EventDisconnected)

	// Long enough for any stray retry timer to have fired.
	time.Sleep(20 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Errorf("dial count after disconnect = %d, want 1", dialer.dialCount())
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %s, want closed", ch.State())
	}
}

func TestChannel_SendRequiresOpenState(t *testing.T) {
	ch := New(&fakeDialer{}, "ws://host/ws/chat", fastOptions())

	if ch.Send(map[string]string{"content": "hello"}) {
		t.Error("Send succeeded on an idle channel")
	}
	if !errors.Is(ch.LastError(), ErrNotOpen) {
		t.Errorf("LastError = %v, want ErrNotOpen", ch.LastError())
	}
}

func TestChannel_SendWritesJSON(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	if !ch.Send(map[string]string{"content": "hello"}) {
		t.Fatal("Send failed on an open channel")
	}
	if conn.writeCount() != 1 {
		t.Fatalf("write count = %d, want 1", conn.writeCount())
	}
	var decoded map[string]string
	if err := json.Unmarshal(conn.writes[0], &decoded); err != nil {
		t.Fatalf("written frame is not JSON: %v", err)
	}
	if decoded["content"] != "hello" {
		t.Errorf("written content = %q, want hello", decoded["content"])
	}
}

func TestChannel_ConcurrentConnectDisconnect(t *testing.T) {
	results := make([]dialResult, 100)
	for i := range results {
		results[i] = dialResult{conn: newFakeConn()}
	}
	dialer := &fakeDialer{results: results}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = ch.Connect(context.Background(), "tok", "u1")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ch.Disconnect()
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-ch.Events():
		case <-done:
			return
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent connect/disconnect deadlocked")
		}
	}
}

func TestChannel_ConcurrentSendAndState(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{results: []dialResult{{conn: conn}}}
	ch := New(dialer, "ws://host/ws/chat", fastOptions())

	if err := ch.Connect(context.Background(), "tok", "u1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitEvent(t, ch, EventConnected)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ch.Send(map[string]int{"n": i})
				_ = ch.State()
				_ = ch.Recent()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			conn.frames <- []byte(`{"conversationId":"c1"}`)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-ch.Events():
		case <-done:
			return
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent access deadlocked")
		}
	}
}

func TestChannel_StateStrings(t *testing.T) {
	cases := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		State(99):       "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
