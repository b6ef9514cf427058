package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/streamsync/stream"
	"github.com/onnwee/streamsync/telemetry"
)

const (
	dataSource       = "DATABASE"
	dataSourceHeader = "Database"
)

type videoJSON struct {
	ID          string `json:"id"`
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	PublishedAt string `json:"publishedAt"`
	Duration    string `json:"duration"`
	IsLive      bool   `json:"isLive"`
}

func toVideoJSON(rec stream.Record) videoJSON {
	return videoJSON{
		ID:          rec.VideoID,
		VideoID:     rec.VideoID,
		Title:       rec.Title,
		Thumbnail:   rec.Thumbnail,
		PublishedAt: rec.PublishedAt,
		Duration:    rec.Duration,
		IsLive:      rec.IsLive,
	}
}

// HandleStreamsList serves the cached broadcasts, newest first. It never calls the platform.
func (h *Handlers) HandleStreamsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "streams_api"))
	start := time.Now()

	page, err := h.app.Reader.Recent(r.Context(), parseIntQuery(r, "maxResults", stream.DefaultLimit))
	if err != nil {
		log.Error("list streams failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":    "Error fetching streams",
			"videos":   []videoJSON{},
			"metadata": map[string]any{"source": "ERROR"},
		})
		return
	}
	queryTime := fmt.Sprintf("%dms", time.Since(start).Milliseconds())

	videos := make([]videoJSON, 0, len(page.Streams))
	for _, rec := range page.Streams {
		videos = append(videos, toVideoJSON(rec))
	}
	var lastSynced *string
	if page.LastSynced != nil {
		s := page.LastSynced.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		lastSynced = &s
	}
	log.Debug("streams served", slog.Int("count", len(videos)), slog.String("query_time", queryTime))

	w.Header().Set("X-Data-Source", dataSourceHeader)
	w.Header().Set("X-YouTube-Quota-Used", "0")
	w.Header().Set("X-Query-Time", queryTime)
	writeJSON(w, http.StatusOK, map[string]any{
		"videos": videos,
		"metadata": map[string]any{
			"source":           dataSource,
			"youtubeQuotaUsed": 0,
			"lastSynced":       lastSynced,
			"queryTime":        queryTime,
			"totalStreams":     len(videos),
		},
	})
}

// HandleStreamGet returns one cached broadcast by platform video id.
func (h *Handlers) HandleStreamGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("videoId")
	if id == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	rec, err := h.app.Engine.Get(r.Context(), id)
	if errors.Is(err, stream.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Stream not found"})
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("get stream failed", slog.String("video_id", id), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Error fetching stream"})
		return
	}
	writeJSON(w, http.StatusOK, toVideoJSON(rec))
}
