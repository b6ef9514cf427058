package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/streamsync/telemetry"
)

// HandleWebhook answers hub verification (GET) and notification pushes (POST).
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "webhook"))
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		challenge, err := h.app.Webhook.Verify(q.Get("hub.mode"), q.Get("hub.challenge"))
		if err != nil {
			log.Warn("rejected hub verification", slog.String("mode", q.Get("hub.mode")))
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		log.Info("hub verification accepted", slog.String("topic", q.Get("hub.topic")))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookMaxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"success": false, "status": "failed", "error": "request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "status": "failed", "error": "failed to read body"})
			return
		}
		out, err := h.app.Webhook.Notify(r.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "status": "failed", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": out.String()})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
