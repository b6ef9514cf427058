package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/streamsync/syncjob"
	"github.com/onnwee/streamsync/telemetry"
)

// HandleCronSync runs one poll cycle. It sits behind cronAuth.
func (h *Handlers) HandleCronSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "cron"))

	res, err := h.app.Sync.Run(r.Context())
	switch {
	case errors.Is(err, syncjob.ErrMissingAPIKey):
		log.Error("sync skipped: youtube api key missing")
		telemetry.CountSyncRun("error", 0, time.Time{})
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "API key missing"})
		return
	case err != nil:
		log.Error("sync failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Sync failed", "details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"synced":    res.Synced,
		"timestamp": res.Timestamp.Format(time.RFC3339Nano),
	})
}
