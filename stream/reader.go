package stream

import (
	"context"
	"time"
)

const (
	// DefaultLimit is the page size used when the caller gives none.
	DefaultLimit = 6
	// MaxLimit caps any requested page size.
	MaxLimit = 50
)

// Page is a read of the most recent records plus freshness metadata.
type Page struct {
	// LastSynced is the latest SyncedAt among Streams; nil when Streams is empty.
	LastSynced *time.Time
	Streams    []Record
}

// Reader serves the cached records. It never calls the platform and never writes.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader { return &Reader{store: store} }

// ClampLimit maps a requested count onto [1, MaxLimit], defaulting non-positive values.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Recent returns up to limit records, newest publish time first.
func (r *Reader) Recent(ctx context.Context, limit int) (Page, error) {
	recs, err := r.store.ListRecent(ctx, ClampLimit(limit))
	if err != nil {
		return Page{}, err
	}
	page := Page{Streams: recs}
	for _, rec := range recs {
		if page.LastSynced == nil || rec.SyncedAt.After(*page.LastSynced) {
			t := rec.SyncedAt
			page.LastSynced = &t
		}
	}
	return page, nil
}
