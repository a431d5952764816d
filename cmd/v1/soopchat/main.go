package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"k8s.io/utils/set"

	"github.com/injooinjoo/streaming-agent/internal/v1/bus"
	"github.com/injooinjoo/streaming-agent/internal/v1/chat"
	"github.com/injooinjoo/streaming-agent/internal/v1/config"
	"github.com/injooinjoo/streaming-agent/internal/v1/events"
	"github.com/injooinjoo/streaming-agent/internal/v1/health"
	"github.com/injooinjoo/streaming-agent/internal/v1/logging"
	"github.com/injooinjoo/streaming-agent/internal/v1/middleware"
	"github.com/injooinjoo/streaming-agent/internal/v1/ratelimit"
	"github.com/injooinjoo/streaming-agent/internal/v1/resolve"
	"github.com/injooinjoo/streaming-agent/internal/v1/tracing"
)

const serviceName = "soop-agent"

// POSIX-style exit codes: resolution problems (including a streamer who is
// simply offline) are distinguishable from transport failures.
const (
	exitOK        = 0
	exitNotLive   = 1
	exitIOFailure = 2
	exitInterrupt = 130
)

// defaultKinds is the subset of event kinds printed when -kinds is not given.
const defaultKinds = "connect,enter_chat_room,chat,notification,text_donation,video_donation,ad_balloon_donation,disconnect"

func main() {
	os.Exit(run())
}

func run() int {
	kindsFlag := flag.String("kinds", defaultKinds, "comma-separated event kinds to print")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: soopchat [flags] <streamer_id>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return exitIOFailure
	}
	streamerID := flag.Arg(0)

	selected, err := parseKinds(*kindsFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIOFailure
	}

	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		return exitIOFailure
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	if err := logging.Initialize(cfg.DevelopmentMode || cfg.GoEnv == "development"); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		return exitIOFailure
	}

	// --- Tracing (Optional) ---
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), serviceName, cfg.OTelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
			return exitIOFailure
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("Failed to shut down tracer provider", "error", err)
			}
		}()
		slog.Info("✅ Tracing initialized", "collector", cfg.OTelCollectorAddr)
	}

	// --- Redis Fan-out Initialization (Optional) ---
	var busService *bus.Service
	if cfg.RedisEnabled {
		var err error
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running without fan-out", "error", err)
			busService = nil // Events stay local
		} else {
			slog.Info("✅ Redis fan-out initialized", "addr", cfg.RedisAddr)
			defer func() {
				if err := busService.Close(); err != nil {
					slog.Error("Failed to close Redis connection", "error", err)
				}
			}()
		}
	} else {
		slog.Info("Running without Redis fan-out")
	}

	// --- Chat Session ---
	resolver := resolve.NewResolver(cfg.ResolveEndpoint, nil)
	session := chat.New(chat.Config{
		Resolver:     resolver,
		PingInterval: cfg.PingInterval,
		InsecureTLS:  cfg.InsecureChatTLS,
	})

	printer := newPrinter(os.Stdout)
	for _, kind := range events.Kinds() {
		if selected.Has(kind) {
			session.Subscribe(kind, printer)
		}
	}
	if busService != nil {
		session.SubscribeAll(bus.NewRelay(busService, session.ID(), streamerID))
	}

	// --- Ops Listener (Optional) ---
	var srv *http.Server
	if cfg.OpsEnabled {
		router := gin.Default()

		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
		router.Use(cors.New(corsConfig))
		router.Use(middleware.CorrelationID())
		if cfg.OTelCollectorAddr != "" {
			router.Use(otelgin.Middleware(serviceName))
		}

		limiter, err := ratelimit.New(cfg.RateLimitOps, busService.Client())
		if err != nil {
			slog.Error("Failed to create rate limiter", "error", err)
			return exitIOFailure
		}
		router.Use(limiter.Middleware())

		// Prometheus metrics endpoint
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		// Health check and status endpoints
		healthHandler := health.NewHandler(session, busService)
		router.GET("/health/live", healthHandler.Liveness)
		router.GET("/health/ready", healthHandler.Readiness)
		router.GET("/status", healthHandler.Status)

		srv = &http.Server{
			Addr:    ":" + cfg.OpsPort,
			Handler: router,
		}

		go func() {
			slog.Info("Ops server starting", "port", cfg.OpsPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Failed to run ops server", "error", err)
			}
		}()
	}

	// --- Run Until Done or Interrupted ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx, streamerID) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var interrupted bool
	var sessionErr error
	select {
	case sessionErr = <-runErr:
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
		interrupted = sig == syscall.SIGINT
		_ = session.Close()
		sessionErr = <-runErr
	}

	// Shutdown the ops server once the session is gone
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server forced to shutdown", "error", err)
		}
	}

	switch {
	case interrupted:
		return exitInterrupt
	case sessionErr == nil:
		return exitOK
	case errors.As(sessionErr, new(*resolve.Error)):
		// Covers ErrNotLive and every other resolution failure
		return exitNotLive
	default:
		return exitIOFailure
	}
}

// parseKinds turns the -kinds flag into a kind set, rejecting names outside
// the public enumeration.
func parseKinds(raw string) (set.Set[events.Kind], error) {
	known := set.New(events.Kinds()...)
	selected := set.New[events.Kind]()
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind := events.Kind(name)
		if !known.Has(kind) {
			return nil, fmt.Errorf("unknown event kind %q", name)
		}
		selected.Insert(kind)
	}
	if selected.Len() == 0 {
		return nil, fmt.Errorf("no event kinds selected")
	}
	return selected, nil
}

// allowedOrigins parses the comma-separated ALLOWED_ORIGINS value.
func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// newPrinter writes one human-readable line per subscribed event.
func newPrinter(w *os.File) events.Handler {
	return events.HandlerFunc(func(ev events.Event) {
		ts := ev.ReceivedAt().Format("15:04:05")
		switch e := ev.(type) {
		case *events.Connect:
			fmt.Fprintf(w, "%s [connect] session acknowledged (user=%s)\n", ts, e.Username)
		case *events.EnterChatRoom:
			fmt.Fprintf(w, "%s [enter_chat_room] joined %s's room\n", ts, e.StreamerID)
		case *events.Chat:
			fmt.Fprintf(w, "%s [chat] %s(%s): %s\n", ts, e.Username, e.UserID, e.Comment)
		case *events.Notification:
			fmt.Fprintf(w, "%s [notification] %s\n", ts, e.Text)
		case *events.Donation:
			fmt.Fprintf(w, "%s [%s] %s(%s) -> %s: %s\n", ts, e.Kind(), e.SenderName, e.SenderID, e.Recipient, e.Amount)
		case *events.Emoticon:
			fmt.Fprintf(w, "%s [emoticon] %s used %s\n", ts, e.Username, e.EmoticonID)
		case *events.Disconnect:
			fmt.Fprintf(w, "%s [disconnect] %s\n", ts, e.Reason)
		case *events.Unknown:
			fmt.Fprintf(w, "%s [unknown] type=%s segments=%d\n", ts, e.TypeCode, len(e.Segments))
		default:
			fmt.Fprintf(w, "%s [%s]\n", ts, ev.Kind())
		}
	})
}
