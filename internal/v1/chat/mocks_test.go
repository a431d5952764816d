package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/injooinjoo/streaming-agent/internal/v1/events"
	"github.com/injooinjoo/streaming-agent/internal/v1/resolve"
)

// mockConn is a scriptable wsConn. Queued packets are served in order;
// Close unblocks any pending read.
type mockConn struct {
	feed    chan []byte
	errFeed chan error
	closed  chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	writes    []mockWrite

	// writeErr, when set, can fail individual writes by packet.
	writeErr func(packet []byte) error
}

type mockWrite struct {
	messageType int
	data        []byte
}

func newMockConn() *mockConn {
	return &mockConn{
		feed:    make(chan []byte, 32),
		errFeed: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (m *mockConn) queue(packets ...[]byte) {
	for _, p := range packets {
		m.feed <- p
	}
}

func (m *mockConn) failRead(err error) {
	m.errFeed <- err
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.feed:
		return websocket.TextMessage, data, nil
	case err := <-m.errFeed:
		return 0, nil, err
	case <-m.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		if err := m.writeErr(data); err != nil {
			return err
		}
	}
	m.writes = append(m.writes, mockWrite{messageType, append([]byte(nil), data...)})
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

// textWrites returns the protocol packets written so far, excluding the
// WebSocket close frame.
func (m *mockConn) textWrites() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, w := range m.writes {
		if w.messageType == websocket.TextMessage {
			out = append(out, w.data)
		}
	}
	return out
}

// mockResolver returns a canned detail or error.
type mockResolver struct {
	mu     sync.Mutex
	detail *resolve.LiveDetail
	err    error
	calls  int
	gotID  string
}

func (m *mockResolver) Resolve(_ context.Context, streamerID string) (*resolve.LiveDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.gotID = streamerID
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

// fakeTicker lets tests fire keepalive ticks explicitly.
type fakeTicker struct {
	ch chan time.Time
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// tick blocks until the keepalive goroutine consumes the tick, so a
// returned tick means the ping path has started.
func (f *fakeTicker) tick() { f.ch <- time.Now() }

// eventRecorder collects dispatched events for assertions.
type eventRecorder struct {
	mu   sync.Mutex
	evts []events.Event
}

func (r *eventRecorder) HandleEvent(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, ev)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.evts))
	for i, ev := range r.evts {
		out[i] = ev.Kind()
	}
	return out
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evts)
}

func (r *eventRecorder) countOf(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.evts {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) lastOf(kind events.Kind) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.evts) - 1; i >= 0; i-- {
		if r.evts[i].Kind() == kind {
			return r.evts[i]
		}
	}
	return nil
}
