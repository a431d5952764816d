// Package bus republishes decoded chat events to Redis pub/sub so
// downstream consumers (dashboards, pipelines) can subscribe without
// speaking the chat protocol. Nothing is stored; this is transport glue.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/injooinjoo/streaming-agent/internal/v1/events"
	"github.com/injooinjoo/streaming-agent/internal/v1/metrics"
)

// Envelope is the JSON document published for every decoded event.
type Envelope struct {
	SessionID  string          `json:"sessionId"`
	StreamerID string          `json:"streamerId"`
	Kind       string          `json:"kind"`            // event kind, e.g. "chat"
	At         time.Time       `json:"at"`              // local receive time of the packet
	Payload    json.RawMessage `json:"payload"`         // the typed event, marshaled
}

// ChannelFor returns the pub/sub channel carrying one streamer's events.
// Channel schema: "soop:chat:{streamer_id}".
func ChannelFor(streamerID string) string {
	return "soop:chat:" + streamerID
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis connection and verifies it immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis Pub/Sub", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Publish broadcasts one envelope to the streamer's channel. When the
// circuit breaker is open the envelope is dropped and counted, never
// surfaced: fan-out failures must not disturb the chat session.
func (s *Service) Publish(ctx context.Context, env Envelope) error {
	if s == nil || s.client == nil {
		return nil // Fan-out disabled, events stay local
	}

	start := time.Now()
	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal envelope: %w", err)
		}
		return nil, s.client.Publish(ctx, ChannelFor(env.StreamerID), data).Err()
	})
	metrics.RedisOperationDuration.WithLabelValues("publish").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			metrics.RedisOperationsTotal.WithLabelValues("publish", "dropped").Inc()
			slog.Warn("Redis Circuit Breaker Open: dropping publish", "streamerID", env.StreamerID, "kind", env.Kind)
			return nil // Graceful degradation: drop event, don't crash caller
		}
		metrics.RedisOperationsTotal.WithLabelValues("publish", "error").Inc()
		slog.Error("Redis Publish failed", "streamerID", env.StreamerID, "kind", env.Kind, "error", err)
		return err
	}

	metrics.RedisOperationsTotal.WithLabelValues("publish", "ok").Inc()
	return nil
}

// Subscribe starts a background goroutine that consumes one streamer's
// envelopes. handler runs for every valid message received.
func (s *Service) Subscribe(ctx context.Context, streamerID string, wg *sync.WaitGroup, handler func(Envelope)) {
	if s == nil || s.client == nil {
		return
	}

	channel := ChannelFor(streamerID)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to Redis channel", "channel", channel)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "channel", channel)
					return
				}

				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.Error("Failed to unmarshal Redis message", "error", err, "raw", msg.Payload)
					continue
				}
				handler(env)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command.
// Used by health checks to verify Redis is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Relay adapts the service to the event dispatcher: subscribed via
// SubscribeAll, it republishes every decoded event for one session. Raw
// events stay local; downstream consumers get the typed variants.
type Relay struct {
	svc        *Service
	sessionID  string
	streamerID string
}

// NewRelay builds a relay for one session.
func NewRelay(svc *Service, sessionID, streamerID string) *Relay {
	return &Relay{svc: svc, sessionID: sessionID, streamerID: streamerID}
}

// HandleEvent implements events.Handler. Marshal or publish failures are
// logged and swallowed; the session never sees them.
func (r *Relay) HandleEvent(ev events.Event) {
	if ev.Kind() == events.KindRaw {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event for fan-out", "kind", ev.Kind(), "error", err)
		return
	}

	_ = r.svc.Publish(context.Background(), Envelope{
		SessionID:  r.sessionID,
		StreamerID: r.streamerID,
		Kind:       string(ev.Kind()),
		At:         ev.ReceivedAt(),
		Payload:    payload,
	})
}
