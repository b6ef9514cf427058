// Command streamsync is the main entrypoint for the stream cache API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to the database and runs idempotent migrations.
//   - Exposes the HTTP API: scheduled sync trigger, hub webhook, cached stream listing,
//     and /healthz, /readyz, /status, /metrics.
//
// Polling is driven by an external scheduler hitting /api/cron/sync-streams.
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/streamsync/app"
	"github.com/onnwee/streamsync/config"
	"github.com/onnwee/streamsync/server"
	"github.com/onnwee/streamsync/telemetry"
)

const (
	serviceName    = "streamsync"
	serviceVersion = "1.0.0"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	telemetry.SetupLogging(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; an empty OTEL_EXPORTER_OTLP_ENDPOINT disables the exporter.
	shutdown, err := telemetry.InitTracing(cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("stream cache ready",
		slog.String("channel_id", cfg.YouTubeChannelID),
		slog.String("db_driver", cfg.DBDriver),
		slog.String("webhook_callback", cfg.CallbackURL()),
		slog.Bool("youtube_configured", a.YouTube.Configured()),
		slog.Bool("tracing", telemetry.IsTracingEnabled()))

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	if err := server.Start(ctx, a, cfg.HTTPAddr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
		stop()
		return
	}
	slog.Info("shutting down")
}
