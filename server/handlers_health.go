package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/streamsync/syncjob"
	"github.com/onnwee/streamsync/telemetry"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests. Only the database gates readiness: reads
// are served from the cache, so a missing platform credential is reported as a warning.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.app.DB().PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "database",
			"error":        err.Error(),
		})
		return
	}

	resp := map[string]any{"status": "ready"}
	if err := h.app.Config.ValidateSyncReady(); err != nil {
		resp["warnings"] = map[string]string{"credentials": err.Error()}
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleStatus returns a lightweight summary: cached stream count, last poll time and pool usage.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{
		"channel_id":     h.app.Config.YouTubeChannelID,
		"db_driver":      string(h.app.Store.Dialect()),
		"youtube_ready":  h.app.YouTube.Configured(),
		"webhook_target": h.app.Config.CallbackURL(),
	}
	if err := h.app.Config.ValidateSyncReady(); err != nil {
		resp["sync_error"] = err.Error()
	}
	if n, err := h.app.Store.Count(ctx); err == nil {
		resp["streams"] = n
	}
	if t, ok, err := h.app.Store.Marked(ctx, syncjob.LastSyncKey); err == nil && ok {
		resp["last_sync"] = t.UTC().Format(time.RFC3339)
	}

	stats := h.app.DB().Stats()
	telemetry.UpdateDatabasePoolMetrics(stats.OpenConnections, stats.InUse)
	resp["db_open_connections"] = stats.OpenConnections
	resp["db_in_use"] = stats.InUse

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
