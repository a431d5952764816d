package chat

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/injooinjoo/streaming-agent/internal/v1/codec"
	"github.com/injooinjoo/streaming-agent/internal/v1/events"
	"github.com/injooinjoo/streaming-agent/internal/v1/logging"
	"github.com/injooinjoo/streaming-agent/internal/v1/metrics"
)

// wsConn defines the interface for WebSocket connection operations.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	Close() error                                        // Close the connection
	SetWriteDeadline(t time.Time) error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

// dialChat opens the chat WebSocket. The server requires the "chat"
// subprotocol and the wire is the framed byte protocol, sent as text
// messages.
func (s *Session) dialChat(ctx context.Context, wsURL string) (wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		Subprotocols:     []string{"chat"},
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.InsecureTLS, // #nosec G402 -- explicit operator opt-out
		},
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// writeFrame serializes one outbound packet. Writes from the run loop and
// the keepalive goroutine share a mutex so packets never interleave.
func (s *Session) writeFrame(packet []byte) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrSocket)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, packet)
}

// closeSocket sends a best-effort close frame and drops the connection.
func (s *Session) closeSocket(conn wsConn) {
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	_ = conn.Close()
}

// readLoop consumes inbound packets until the socket closes. Read errors
// after a local shutdown are the expected unblocking mechanism, not faults.
func (s *Session) readLoop(ctx context.Context) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closing() {
				return
			}
			s.shutdown("read failed", fmt.Errorf("%w: read: %v", ErrSocket, err))
			return
		}
		s.handleMessage(ctx, data)
	}
}

// handleMessage emits raw first, then the decoded event. Malformed packets
// are dropped with a warning; the session keeps reading.
func (s *Session) handleMessage(ctx context.Context, data []byte) {
	now := time.Now()
	s.dispatcher.Emit(&events.Raw{Meta: events.Meta{At: now}, Bytes: data})

	frame, err := codec.Decode(data)
	if err != nil {
		metrics.FrameFormatErrors.Inc()
		logging.Warn(ctx, "dropping malformed packet",
			zap.Error(err),
			zap.Int("size", len(data)))
		return
	}

	kind := events.KindForType(frame.TypeCode)
	metrics.FramesReceived.WithLabelValues(string(kind)).Inc()
	defer func() {
		metrics.FrameProcessingDuration.WithLabelValues(string(kind)).Observe(time.Since(now).Seconds())
	}()

	switch frame.TypeCode {
	case codec.TypeConnect:
		s.onConnectAck(ctx, frame, now)
	case codec.TypeEnterChatRoom:
		s.onEnterAck(ctx, frame, now)
	case codec.TypeDisconnect:
		s.shutdown("server disconnect", nil)
	default:
		if ev := events.FromFrame(frame, s.streamerID, now); ev != nil {
			s.dispatcher.Emit(ev)
		}
	}
}

// onConnectAck moves connected -> joined, answers with the join packet, and
// starts the keepalive. A duplicate ack is emitted but never re-joins or
// regresses state.
func (s *Session) onConnectAck(ctx context.Context, frame *codec.Frame, now time.Time) {
	s.mu.Lock()
	promote := s.state == StateConnected
	if promote {
		s.state = StateJoined
	}
	chatNo := ""
	if s.detail != nil {
		chatNo = s.detail.ChatNo
	}
	s.mu.Unlock()

	s.dispatcher.Emit(events.FromFrame(frame, s.streamerID, now))

	if !promote {
		logging.Warn(ctx, "ignoring duplicate connect ack", zap.String("state", string(s.State())))
		return
	}

	if err := s.writeFrame(codec.Join(chatNo)); err != nil {
		s.shutdown("join write failed", fmt.Errorf("%w: join write: %v", ErrProtocol, err))
		return
	}
	logging.Info(ctx, "joined chat room", zap.String("chat_no", chatNo))
	s.startKeepalive(ctx)
}

// onEnterAck moves joined -> active.
func (s *Session) onEnterAck(ctx context.Context, frame *codec.Frame, now time.Time) {
	s.mu.Lock()
	promote := s.state == StateJoined
	if promote {
		s.state = StateActive
	}
	s.mu.Unlock()

	s.dispatcher.Emit(events.FromFrame(frame, s.streamerID, now))

	if !promote {
		logging.Warn(ctx, "ignoring duplicate enter ack", zap.String("state", string(s.State())))
		return
	}
	logging.Info(ctx, "chat room active")
}

// ticker abstracts time.Ticker so tests can drive the keepalive cadence.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type wallTicker struct{ *time.Ticker }

func (t wallTicker) C() <-chan time.Time { return t.Ticker.C }

func newWallTicker(d time.Duration) ticker { return wallTicker{time.NewTicker(d)} }

// startKeepalive pings on every tick until shutdown. A failed ping write
// ends the session; the server drops silent connections, so there is no
// point limping on.
func (s *Session) startKeepalive(ctx context.Context) {
	s.keepaliveWG.Add(1)
	go func() {
		defer s.keepaliveWG.Done()
		tk := s.newTicker(s.cfg.PingInterval)
		defer tk.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-tk.C():
				if err := s.writeFrame(codec.Ping()); err != nil {
					metrics.PingFailures.Inc()
					s.shutdown("keepalive failed", fmt.Errorf("%w: ping write: %v", ErrProtocol, err))
					return
				}
				metrics.PingsSent.Inc()
			}
		}
	}()
}
