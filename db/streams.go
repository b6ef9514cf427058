package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/streamsync/stream"
)

const streamColumns = `id, video_id, title, thumbnail, published_at, duration, is_live, synced_at`

// StreamStore is the SQL implementation of stream.Store.
type StreamStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewStreamStore(database *sql.DB, dialect Dialect) *StreamStore {
	return &StreamStore{db: database, dialect: dialect}
}

// DB exposes the underlying pool for health checks and kv helpers.
func (s *StreamStore) DB() *sql.DB { return s.db }

func (s *StreamStore) Dialect() Dialect { return s.dialect }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (stream.Record, error) {
	var (
		rec    stream.Record
		synced int64
	)
	if err := row.Scan(&rec.ID, &rec.VideoID, &rec.Title, &rec.Thumbnail, &rec.PublishedAt, &rec.Duration, &rec.IsLive, &synced); err != nil {
		return stream.Record{}, err
	}
	rec.SyncedAt = time.UnixMilli(synced).UTC()
	return rec, nil
}

func (s *StreamStore) FindByVideoID(ctx context.Context, videoID string) (stream.Record, error) {
	q := s.dialect.rebind(`SELECT ` + streamColumns + ` FROM streams WHERE video_id = ?`)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, videoID))
	if errors.Is(err, sql.ErrNoRows) {
		return stream.Record{}, stream.ErrNotFound
	}
	if err != nil {
		return stream.Record{}, fmt.Errorf("find stream %s: %w", videoID, err)
	}
	return rec, nil
}

// ListRecent returns up to limit rows newest publish time first. Ties fall back to
// video_id so the order is total.
func (s *StreamStore) ListRecent(ctx context.Context, limit int) ([]stream.Record, error) {
	q := s.dialect.rebind(`SELECT ` + streamColumns + ` FROM streams ORDER BY published_at DESC, video_id DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	out := make([]stream.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Put inserts or replaces the row for rec.VideoID in one statement. The update only lands
// when the stored synced_at is not newer; otherwise the current row is returned unchanged.
func (s *StreamStore) Put(ctx context.Context, rec stream.Record) (stream.Record, error) {
	q := s.dialect.rebind(`INSERT INTO streams (video_id, title, thumbnail, published_at, duration, is_live, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			title = excluded.title,
			thumbnail = excluded.thumbnail,
			published_at = excluded.published_at,
			duration = excluded.duration,
			is_live = excluded.is_live,
			synced_at = excluded.synced_at
		WHERE streams.synced_at <= excluded.synced_at
		RETURNING ` + streamColumns)
	stored, err := scanRecord(s.db.QueryRowContext(ctx, q,
		rec.VideoID, rec.Title, rec.Thumbnail, rec.PublishedAt, rec.Duration, rec.IsLive, rec.SyncedAt.UnixMilli()))
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race to a newer write.
		return s.FindByVideoID(ctx, rec.VideoID)
	}
	if err != nil {
		return stream.Record{}, fmt.Errorf("put stream %s: %w", rec.VideoID, err)
	}
	return stored, nil
}

// Count returns the number of cached records.
func (s *StreamStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM streams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count streams: %w", err)
	}
	return n, nil
}

// Mark records t under key in the kv table.
func (s *StreamStore) Mark(ctx context.Context, key string, t time.Time) error {
	return PutKV(ctx, s.db, s.dialect, key, t.UTC().Format(time.RFC3339Nano))
}

// Marked returns the time stored under key; ok is false when none was recorded.
func (s *StreamStore) Marked(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	v, ok, err := GetKV(ctx, s.db, s.dialect, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err = time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, true, nil
}
