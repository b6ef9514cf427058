package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses.
// Point youtubeapi.Options.BaseURL at its URL.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	calls    atomic.Int32
}

// SearchItem is one search hit served by the mock.
type SearchItem struct {
	VideoID     string
	Title       string
	PublishedAt string
	High        string
	Medium      string
}

// VideoItem is one videos.list item served by the mock.
type VideoItem struct {
	VideoID              string
	Title                string
	PublishedAt          string
	LiveBroadcastContent string
	Duration             string
	High                 string
	Default              string
}

// NewMockYouTubeServer creates a new mock YouTube API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.calls.Add(1)
		key := r.URL.Path
		if ev := r.URL.Query().Get("eventType"); ev != "" {
			key += "?eventType=" + ev
		}
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Calls returns how many requests the server has received.
func (m *MockYouTubeServer) Calls() int { return int(m.calls.Load()) }

func thumbs(high, medium, def string) map[string]interface{} {
	out := map[string]interface{}{}
	if high != "" {
		out["high"] = map[string]string{"url": high}
	}
	if medium != "" {
		out["medium"] = map[string]string{"url": medium}
	}
	if def != "" {
		out["default"] = map[string]string{"url": def}
	}
	return out
}

// MockSearchResponse adds a handler for /youtube/v3/search with the given eventType.
func (m *MockYouTubeServer) MockSearchResponse(eventType string, items []SearchItem) {
	m.Handlers["/youtube/v3/search?eventType="+eventType] = func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]interface{}, 0, len(items))
		for _, it := range items {
			data = append(data, map[string]interface{}{
				"id": map[string]string{"kind": "youtube#video", "videoId": it.VideoID},
				"snippet": map[string]interface{}{
					"title":       it.Title,
					"publishedAt": it.PublishedAt,
					"thumbnails":  thumbs(it.High, it.Medium, ""),
				},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": data}) //nolint:errcheck // test mock response
	}
}

// MockSearchError makes searches for eventType fail with status.
func (m *MockYouTubeServer) MockSearchError(eventType string, status int) {
	m.Handlers["/youtube/v3/search?eventType="+eventType] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"error": map[string]interface{}{"code": status, "message": "mock failure"},
		})
	}
}

// MockVideosResponse adds a handler for /youtube/v3/videos serving the given items by id.
func (m *MockYouTubeServer) MockVideosResponse(items ...VideoItem) {
	byID := map[string]VideoItem{}
	for _, it := range items {
		byID[it.VideoID] = it
	}
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]interface{}{}
		if it, ok := byID[r.URL.Query().Get("id")]; ok {
			data = append(data, map[string]interface{}{
				"id": it.VideoID,
				"snippet": map[string]interface{}{
					"title":                it.Title,
					"publishedAt":          it.PublishedAt,
					"liveBroadcastContent": it.LiveBroadcastContent,
					"thumbnails":           thumbs(it.High, "", it.Default),
				},
				"contentDetails": map[string]string{"duration": it.Duration},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": data}) //nolint:errcheck // test mock response
	}
}

// MockHubServer records WebSub subscription requests.
type MockHubServer struct {
	*httptest.Server
	mu       sync.Mutex
	Requests []url.Values
	Status   int
}

// NewMockHubServer returns a hub answering 202 Accepted unless Status is changed.
func NewMockHubServer(t *testing.T) *MockHubServer {
	t.Helper()
	h := &MockHubServer{Status: http.StatusAccepted}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		h.mu.Lock()
		h.Requests = append(h.Requests, r.PostForm)
		status := h.Status
		h.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(h.Close)
	return h
}

// Count returns the number of subscription requests received.
func (h *MockHubServer) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Requests)
}

// SetStatus changes the status returned to subsequent requests.
func (h *MockHubServer) SetStatus(code int) {
	h.mu.Lock()
	h.Status = code
	h.mu.Unlock()
}
