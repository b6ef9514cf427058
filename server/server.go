// Package server exposes the HTTP API: the scheduled sync trigger, the hub webhook, the
// cached stream listing, and health, status and metrics endpoints. It injects correlation
// IDs into request contexts for consistent logging.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/streamsync/app"
	"github.com/onnwee/streamsync/config"
	"github.com/onnwee/streamsync/telemetry"
	"github.com/onnwee/streamsync/websub"
)

// Route paths.
const (
	CronSyncPath   = "/api/cron/sync-streams"
	StreamsPath    = "/api/youtube/streams"
	webhookMaxBody = 1 << 20
)

// NewMux returns the HTTP handler with all routes.
// The provided context is used for rate limiter cleanup goroutines lifecycle.
func NewMux(ctx context.Context, a *app.App) http.Handler {
	cfg := a.Config
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       cfg.RateLimitEnabled,
		requestsPerIP: cfg.RateLimitRequests,
		window:        cfg.RateLimitWindow,
	})
	handlers := NewHandlers(a)

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.HandleFunc("/status", handlers.HandleStatus)

	// Scheduler trigger: rate limited, then bearer-authenticated.
	mux.Handle(CronSyncPath, rateLimitMiddleware(cronAuth(http.HandlerFunc(handlers.HandleCronSync), cfg.CronSecret), limiter))

	mux.HandleFunc(config.WebhookPath, handlers.HandleWebhook)

	mux.HandleFunc(StreamsPath, handlers.HandleStreamsList)
	mux.HandleFunc(StreamsPath+"/{videoId}", handlers.HandleStreamGet)

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
	return withCORSConfig(handler, &corsConfig{
		allowedOrigins: cfg.CORSAllowedOrigins,
		permissive:     cfg.CORSPermissive,
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// writeTimeout must outlast a cron sync run: the concurrent searches take one upstream
// timeout, the hub subscribe up to DefaultMaxTries more, plus backoff waits and store writes.
func writeTimeout(upstream time.Duration) time.Duration {
	return (1+websub.DefaultMaxTries)*upstream + 15*time.Second
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, a *app.App, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, a),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout(a.Config.UpstreamTimeout),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
