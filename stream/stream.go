// Package stream defines the cached broadcast record, the keyed store contract it lives
// in, and the upsert engine both sync paths (scheduled poll and push webhook) write through.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by stores when no record exists for a video id.
	ErrNotFound = errors.New("stream not found")
	// ErrInvalidPayload marks a payload that cannot be stored (missing id or bad timestamp).
	ErrInvalidPayload = errors.New("invalid stream payload")
)

// Record is one cached broadcast, keyed by the platform's video id.
type Record struct {
	SyncedAt    time.Time `json:"syncedAt"`
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt string    `json:"publishedAt"` // RFC 3339, UTC
	Duration    string    `json:"duration"`    // ISO-8601 duration, empty while unknown
	ID          int64     `json:"id"`
	IsLive      bool      `json:"isLive"`
}

// Store is the durable keyed table of records.
//
// Put is an atomic create-or-replace by VideoID guarded on SyncedAt: a write whose SyncedAt
// is older than the stored one leaves the row untouched and the current row is returned.
type Store interface {
	FindByVideoID(ctx context.Context, videoID string) (Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Put(ctx context.Context, rec Record) (Record, error)
}

// Duration is an ISO-8601 duration that may not be known yet (live broadcasts, search results).
type Duration struct {
	Value string
	Known bool
}

// UnknownDuration is used by payloads that carry no duration information.
func UnknownDuration() Duration { return Duration{} }

// KnownDuration wraps a platform duration; an empty value is still unknown.
func KnownDuration(v string) Duration {
	v = strings.TrimSpace(v)
	return Duration{Value: v, Known: v != ""}
}

func (d Duration) String() string { return d.Value }

// Payload is the normalized input shared by the poll job and the webhook receiver.
type Payload struct {
	VideoID     string
	Title       string
	Thumbnail   string
	PublishedAt string
	Duration    Duration
	IsLive      bool
}

// NormalizeTimestamp parses an RFC 3339 timestamp and renders it in UTC with second
// precision so stored values sort lexically in chronological order. The result is not the
// string the platform sent: fractional seconds are dropped and any offset becomes "Z", so
// "2025-06-07T20:00:00.123+02:00" is stored as "2025-06-07T18:00:00Z".
func NormalizeTimestamp(s string) (string, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: published_at %q: %v", ErrInvalidPayload, s, err)
	}
	return t.UTC().Format(time.RFC3339), nil
}

// record converts the payload into a Record without identity or sync time.
func (p Payload) record() (Record, error) {
	id := strings.TrimSpace(p.VideoID)
	if id == "" {
		return Record{}, fmt.Errorf("%w: empty video id", ErrInvalidPayload)
	}
	published, err := NormalizeTimestamp(p.PublishedAt)
	if err != nil {
		return Record{}, err
	}
	return Record{
		VideoID:     id,
		Title:       p.Title,
		Thumbnail:   p.Thumbnail,
		PublishedAt: published,
		Duration:    p.Duration.Value,
		IsLive:      p.IsLive,
	}, nil
}
