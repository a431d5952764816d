// Package health serves the ops probes: liveness, readiness, and a JSON
// snapshot of the running chat session.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/injooinjoo/streaming-agent/internal/v1/bus"
	"github.com/injooinjoo/streaming-agent/internal/v1/chat"
	"github.com/injooinjoo/streaming-agent/internal/v1/logging"
)

// StatusSource yields a point-in-time snapshot of the chat session.
// Implemented by *chat.Session.
type StatusSource interface {
	Snapshot() chat.Status
}

// Handler manages health check endpoints
type Handler struct {
	session StatusSource
	bus     *bus.Service
}

// NewHandler creates a new health check handler. busService may be nil when
// the Redis fan-out is disabled.
func NewHandler(session StatusSource, busService *bus.Service) *Handler {
	return &Handler{
		session: session,
		bus:     busService,
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// StatusResponse is the /status payload: the session snapshot plus uptime.
type StatusResponse struct {
	chat.Status
	Uptime string `json:"uptime,omitempty"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only when the chat session holds an established socket and
// Redis (when enabled) answers PING; 503 otherwise, including after the
// session has closed.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	sessionStatus := h.checkSession()
	checks["session"] = sessionStatus
	if sessionStatus != "healthy" {
		allHealthy = false
	}

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// Status handles the session snapshot endpoint
// GET /status
func (h *Handler) Status(c *gin.Context) {
	snap := h.session.Snapshot()
	response := StatusResponse{Status: snap}
	if !snap.StartedAt.IsZero() {
		response.Uptime = time.Since(snap.StartedAt).Round(time.Second).String()
	}

	c.JSON(http.StatusOK, response)
}

// checkSession reports the session as healthy only once the socket is
// established and still open.
func (h *Handler) checkSession() string {
	switch h.session.Snapshot().State {
	case chat.StateConnected, chat.StateJoined, chat.StateActive:
		return "healthy"
	case chat.StateIdle, chat.StateResolving, chat.StateConnecting:
		return "starting"
	default:
		return "closed"
	}
}

// checkRedis verifies Redis connectivity using PING command
func (h *Handler) checkRedis(ctx context.Context) string {
	// If Redis is not enabled (local fan-out off), consider it healthy
	if h.bus == nil {
		return "healthy"
	}

	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
