// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SyncRuns             *prometheus.CounterVec // result=ok|partial|error|unauthorized
	StreamsSynced        prometheus.Counter
	UpstreamFailures     *prometheus.CounterVec // call=live|completed|video|subscribe
	WebhookNotifications *prometheus.CounterVec // outcome=processed|noop|error
	Upserts              *prometheus.CounterVec // result=created|updated|patched|invalid|error

	// Histograms (seconds)
	SyncDuration     prometheus.Observer
	UpstreamDuration *prometheus.HistogramVec

	// Gauges
	LastSyncTimestamp prometheus.Gauge
	DBConnsOpen       prometheus.Gauge
	DBConnsInUse      prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_sync_runs_total", Help: "Poll sync runs by result"}, []string{"result"})
		StreamsSynced = promauto.NewCounter(prometheus.CounterOpts{Name: "streamsync_streams_synced_total", Help: "Records committed by poll sync runs"})
		UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_upstream_failures_total", Help: "Failed calls to the video platform or hub"}, []string{"call"})
		WebhookNotifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_webhook_notifications_total", Help: "Push notifications by outcome"}, []string{"outcome"})
		Upserts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamsync_upserts_total", Help: "Upsert engine writes by result"}, []string{"result"})
		SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamsync_sync_duration_seconds",
			Help:    "Wall time of a poll sync run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamsync_upstream_duration_seconds",
			Help:    "Latency of outbound platform calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"call"})
		LastSyncTimestamp = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamsync_last_sync_timestamp_seconds", Help: "Unix time of the last completed poll sync"})
		DBConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamsync_db_connections_open", Help: "Open database connections"})
		DBConnsInUse = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamsync_db_connections_in_use", Help: "Database connections in use"})
	})
}

// CountUpsert records one upsert engine outcome. No-op before Init.
func CountUpsert(result string) {
	if Upserts != nil {
		Upserts.WithLabelValues(result).Inc()
	}
}

// CountSyncRun records a poll run outcome. A zero at means the run never started
// (rejected or unconfigured), so only the outcome counter moves.
func CountSyncRun(result string, synced int, at time.Time) {
	if SyncRuns == nil {
		return
	}
	SyncRuns.WithLabelValues(result).Inc()
	if at.IsZero() {
		return
	}
	StreamsSynced.Add(float64(synced))
	LastSyncTimestamp.Set(float64(at.Unix()))
}

// CountUpstreamFailure increments the failure counter for an outbound call.
func CountUpstreamFailure(call string) {
	if UpstreamFailures != nil {
		UpstreamFailures.WithLabelValues(call).Inc()
	}
}

// CountWebhook records a push notification outcome.
func CountWebhook(outcome string) {
	if WebhookNotifications != nil {
		WebhookNotifications.WithLabelValues(outcome).Inc()
	}
}

// ObserveUpstream records the latency of an outbound call.
func ObserveUpstream(call string, d time.Duration) {
	if UpstreamDuration != nil {
		UpstreamDuration.WithLabelValues(call).Observe(d.Seconds())
	}
}

// UpdateDatabasePoolMetrics mirrors sql.DBStats into gauges.
func UpdateDatabasePoolMetrics(open, inUse int) {
	if DBConnsOpen != nil {
		DBConnsOpen.Set(float64(open))
		DBConnsInUse.Set(float64(inUse))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
