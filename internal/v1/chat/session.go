// Package chat runs a read-only session against a SOOP live chat room:
// resolve, WebSocket handshake, room join, keepalive, and event dispatch.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/injooinjoo/streaming-agent/internal/v1/codec"
	"github.com/injooinjoo/streaming-agent/internal/v1/events"
	"github.com/injooinjoo/streaming-agent/internal/v1/logging"
	"github.com/injooinjoo/streaming-agent/internal/v1/metrics"
	"github.com/injooinjoo/streaming-agent/internal/v1/resolve"
)

var (
	// ErrHandshake reports a failed WebSocket dial.
	ErrHandshake = errors.New("chat: handshake failed")
	// ErrProtocol reports a failed protocol exchange on an established
	// socket, including keepalive write failures.
	ErrProtocol = errors.New("chat: protocol failure")
	// ErrSocket reports a connection that broke mid-session.
	ErrSocket = errors.New("chat: socket failure")
)

// State is the lifecycle phase of a session. Sessions move strictly
// forward: joined is reachable only from connected, active only from
// joined, and closed is terminal.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateJoined     State = "joined"
	StateActive     State = "active"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

const (
	// DefaultPingInterval is the keepalive cadence the chat server expects.
	DefaultPingInterval = 60 * time.Second

	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// LiveResolver yields connection coordinates for a streamer. Implemented by
// *resolve.Resolver.
type LiveResolver interface {
	Resolve(ctx context.Context, streamerID string) (*resolve.LiveDetail, error)
}

// Config carries session construction parameters. Resolver is required;
// zero durations select the defaults.
type Config struct {
	Resolver         LiveResolver
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	// InsecureTLS disables peer certificate verification for the chat
	// endpoint. Verification stays on unless an operator opts out.
	InsecureTLS bool
}

// Session is a single connection to one streamer's chat room. A Session is
// one-shot: construct, subscribe, Run, and discard. Reconnecting means a
// new Session, starting with a fresh resolve.
type Session struct {
	cfg        Config
	id         string
	dispatcher *events.Dispatcher
	tracer     trace.Tracer

	// dial and newTicker are replaceable in tests.
	dial      dialFunc
	newTicker func(time.Duration) ticker

	mu          sync.RWMutex
	state       State
	streamerID  string
	detail      *resolve.LiveDetail
	conn        wsConn
	startedAt   time.Time
	closeReason string
	closeCause  error

	writeMu sync.Mutex

	done           chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
	keepaliveWG    sync.WaitGroup
}

// Status is a point-in-time snapshot for operational surfaces.
type Status struct {
	SessionID    string    `json:"sessionId"`
	StreamerID   string    `json:"streamerId"`
	State        State     `json:"state"`
	Live         bool      `json:"live"`
	StreamerNick string    `json:"streamerNick,omitempty"`
	Title        string    `json:"title,omitempty"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
}

// New builds an idle session.
func New(cfg Config) *Session {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	s := &Session{
		cfg:        cfg,
		id:         uuid.NewString(),
		dispatcher: events.NewDispatcher(),
		tracer:     otel.Tracer("github.com/injooinjoo/streaming-agent/internal/v1/chat"),
		state:      StateIdle,
		done:       make(chan struct{}),
		newTicker:  newWallTicker,
	}
	s.dial = s.dialChat
	return s
}

// ID returns the session's unique id, present on every log line and
// fan-out envelope.
func (s *Session) ID() string { return s.id }

// Subscribe registers a handler for one event kind. Handlers run on the
// session's receive goroutine and must not block.
func (s *Session) Subscribe(kind events.Kind, h events.Handler) {
	s.dispatcher.Subscribe(kind, h)
}

// SubscribeAll registers a handler for every event, including raw.
func (s *Session) SubscribeAll(h events.Handler) {
	s.dispatcher.SubscribeAll(h)
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Detail returns the resolved live detail, or nil before resolution.
func (s *Session) Detail() *resolve.LiveDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detail
}

// Snapshot returns the current session status.
func (s *Session) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		SessionID:  s.id,
		StreamerID: s.streamerID,
		State:      s.state,
		StartedAt:  s.startedAt,
	}
	if s.detail != nil {
		st.Live = s.detail.Live
		st.StreamerNick = s.detail.StreamerNick
		st.Title = s.detail.Title
	}
	return st
}

// Run resolves the streamer, connects, joins the room, and blocks until the
// session ends. It returns nil for a clean end (server disconnect, Close,
// or a canceled context observed before connect) and the fatal error
// otherwise. Run may be called once.
func (s *Session) Run(ctx context.Context, streamerID string) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("chat: session already started (state %s)", state)
	}
	s.state = StateResolving
	s.streamerID = streamerID
	s.startedAt = time.Now()
	s.mu.Unlock()

	ctx = context.WithValue(ctx, logging.SessionIDKey, s.id)
	ctx = context.WithValue(ctx, logging.StreamerIDKey, streamerID)

	ctx, span := s.tracer.Start(ctx, "chat.session",
		trace.WithAttributes(attribute.String("streamer_id", streamerID)))
	defer span.End()

	detail, err := s.cfg.Resolver.Resolve(ctx, streamerID)
	if err != nil {
		s.setClosed()
		return err
	}
	if s.closing() {
		s.setClosed()
		return nil
	}

	s.mu.Lock()
	s.detail = detail
	s.state = StateConnecting
	s.mu.Unlock()

	wsURL := detail.WebsocketURL(streamerID)
	logging.Info(ctx, "dialing chat endpoint",
		zap.String("url", wsURL),
		zap.String("chat_no", detail.ChatNo),
		zap.String("title", detail.Title))

	conn, err := s.dial(ctx, wsURL)
	if err != nil {
		s.setClosed()
		return fmt.Errorf("%w: dial %s: %v", ErrHandshake, wsURL, err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed underneath us while dialing.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	metrics.IncSession()
	defer metrics.DecSession()

	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown("context canceled", ctx.Err())
		case <-watch:
		}
	}()

	if err := s.writeFrame(codec.Connect()); err != nil {
		s.shutdown("connect write failed", fmt.Errorf("%w: connect write: %v", ErrProtocol, err))
	} else {
		logging.Info(ctx, "chat socket established", zap.String("url", wsURL))
		s.readLoop(ctx)
	}

	return s.finish(ctx)
}

// Close ends the session from the caller's side. It is idempotent, safe
// from any goroutine, and safe in every state; a blocked Run unblocks and
// returns nil.
func (s *Session) Close() error {
	s.shutdown("client closed", nil)

	// A session that never connected has no run loop to complete the
	// transition.
	s.mu.Lock()
	if s.conn == nil && s.state == StateClosing {
		s.state = StateClosed
	}
	s.mu.Unlock()
	return nil
}

// shutdown records the first close reason, marks the session closing, and
// closes the socket so the reader unblocks. Safe to call from any
// goroutine, any number of times; only the first call wins.
func (s *Session) shutdown(reason string, cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeReason = reason
		s.closeCause = cause
		if s.state != StateClosed {
			s.state = StateClosing
		}
		conn := s.conn
		s.mu.Unlock()

		close(s.done)

		if conn != nil {
			s.closeSocket(conn)
		}
	})
}

// finish waits for the keepalive to stop, marks the session closed, and
// emits the final disconnect event. Only sessions that reached connected
// get here, so the disconnect contract holds: exactly one, after resources
// are released.
func (s *Session) finish(ctx context.Context) error {
	s.shutdown("session ended", nil)
	s.keepaliveWG.Wait()

	s.mu.Lock()
	reason := s.closeReason
	cause := s.closeCause
	streamerID := s.streamerID
	s.state = StateClosed
	s.mu.Unlock()

	s.disconnectOnce.Do(func() {
		s.dispatcher.Emit(&events.Disconnect{
			Meta:       events.Meta{At: time.Now()},
			StreamerID: streamerID,
			Reason:     reason,
			ErrorKind:  errorKind(cause),
		})
	})

	if cause != nil {
		logging.Warn(ctx, "session closed", zap.String("reason", reason), zap.Error(cause))
	} else {
		logging.Info(ctx, "session closed", zap.String("reason", reason))
	}
	return cause
}

func (s *Session) setClosed() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

func (s *Session) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// errorKind names the failure class carried on the disconnect event.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrProtocol):
		return "protocol_error"
	case errors.Is(err, ErrSocket):
		return "socket_error"
	case errors.Is(err, ErrHandshake):
		return "handshake_error"
	default:
		return "error"
	}
}
