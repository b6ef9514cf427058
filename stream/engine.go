package stream

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/streamsync/telemetry"
)

const lockStripes = 64

// keyedMutex serializes work per video id using a fixed set of striped locks.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// Engine applies idempotent upserts against a Store.
type Engine struct {
	store       Store
	now         func() time.Time
	locks       keyedMutex
	concurrency int
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source used for SyncedAt.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConcurrency bounds how many video ids a batch writes in parallel.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine returns an Engine writing to store.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store, now: time.Now, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stamp returns the sync time for a write; it never moves behind the stored value.
func (e *Engine) stamp(prev time.Time) time.Time {
	t := e.now().UTC().Truncate(time.Millisecond)
	if t.Before(prev) {
		return prev
	}
	return t
}

// Get returns the record for videoID or ErrNotFound.
func (e *Engine) Get(ctx context.Context, videoID string) (Record, error) {
	return e.store.FindByVideoID(ctx, videoID)
}

// Upsert creates or overwrites the record for the payload's video id and returns its identity.
// A payload with unknown duration keeps a duration already on file, and an existing
// publish time is never replaced.
func (e *Engine) Upsert(ctx context.Context, p Payload) (int64, error) {
	rec, err := p.record()
	if err != nil {
		telemetry.CountUpsert("invalid")
		return 0, err
	}

	unlock := e.locks.lock(rec.VideoID)
	defer unlock()

	var prev time.Time
	existing, err := e.store.FindByVideoID(ctx, rec.VideoID)
	switch {
	case err == nil:
		prev = existing.SyncedAt
		if !p.Duration.Known {
			rec.Duration = existing.Duration
		}
		if existing.PublishedAt != "" {
			rec.PublishedAt = existing.PublishedAt
		}
	case errors.Is(err, ErrNotFound):
	default:
		telemetry.CountUpsert("error")
		return 0, fmt.Errorf("lookup %s: %w", rec.VideoID, err)
	}

	rec.SyncedAt = e.stamp(prev)
	stored, err := e.store.Put(ctx, rec)
	if err != nil {
		telemetry.CountUpsert("error")
		return 0, fmt.Errorf("put %s: %w", rec.VideoID, err)
	}
	if existing.ID == 0 {
		telemetry.CountUpsert("created")
	} else {
		telemetry.CountUpsert("updated")
	}
	return stored.ID, nil
}

// UpsertBatch applies Upsert to every payload and returns identities in input order.
// Each payload commits on its own: a failure leaves 0 at that index and is reported in the
// joined error without undoing the others. Payloads sharing a video id are applied in
// input order; distinct ids may be written concurrently.
func (e *Engine) UpsertBatch(ctx context.Context, payloads []Payload) ([]int64, error) {
	ids := make([]int64, len(payloads))
	errs := make([]error, len(payloads))

	var order []string
	groups := make(map[string][]int)
	for i, p := range payloads {
		if _, ok := groups[p.VideoID]; !ok {
			order = append(order, p.VideoID)
		}
		groups[p.VideoID] = append(groups[p.VideoID], i)
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, key := range order {
		idx := groups[key]
		g.Go(func() error {
			for _, i := range idx {
				id, err := e.Upsert(ctx, payloads[i])
				if err != nil {
					errs[i] = fmt.Errorf("item %d: %w", i, err)
					slog.Warn("stream upsert failed", slog.Int("index", i), slog.String("video_id", payloads[i].VideoID), slog.Any("err", err), slog.String("component", "upsert"))
					continue
				}
				ids[i] = id
			}
			return nil
		})
	}
	_ = g.Wait()

	return ids, errors.Join(errs...)
}

// SetLiveStatus updates only IsLive and SyncedAt on an existing record.
// It reports ok=false without writing when the video id is unknown.
func (e *Engine) SetLiveStatus(ctx context.Context, videoID string, isLive bool) (id int64, ok bool, err error) {
	unlock := e.locks.lock(videoID)
	defer unlock()

	rec, err := e.store.FindByVideoID(ctx, videoID)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s: %w", videoID, err)
	}
	rec.IsLive = isLive
	rec.SyncedAt = e.stamp(rec.SyncedAt)
	stored, err := e.store.Put(ctx, rec)
	if err != nil {
		return 0, false, fmt.Errorf("put %s: %w", videoID, err)
	}
	telemetry.CountUpsert("patched")
	return stored.ID, true, nil
}
