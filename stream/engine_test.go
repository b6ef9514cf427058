package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func payload(id string, live bool) Payload {
	return Payload{
		VideoID:     id,
		Title:       "title " + id,
		Thumbnail:   "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
		PublishedAt: "2025-02-01T10:00:00Z",
		Duration:    UnknownDuration(),
		IsLive:      live,
	}
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	store := newMemStore()
	clock := newStepClock()
	e := NewEngine(store, WithClock(clock.Now))
	ctx := context.Background()

	id1, err := e.Upsert(ctx, payload("abc", true))
	require.NoError(t, err)
	first, err := store.FindByVideoID(ctx, "abc")
	require.NoError(t, err)

	p := payload("abc", false)
	p.Title = "renamed"
	id2, err := e.Upsert(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "identity must be stable across upserts")
	got, err := store.FindByVideoID(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.False(t, got.IsLive)
	assert.True(t, got.SyncedAt.After(first.SyncedAt))
	assert.Equal(t, 1, store.len())
}

func TestUpsertIdempotent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	p := payload("same", false)
	p.Duration = KnownDuration("PT1H2M3S")
	var last time.Time
	for i := 0; i < 5; i++ {
		_, err := e.Upsert(ctx, p)
		require.NoError(t, err)
		rec, err := store.FindByVideoID(ctx, "same")
		require.NoError(t, err)
		assert.False(t, rec.SyncedAt.Before(last))
		last = rec.SyncedAt
		assert.Equal(t, "PT1H2M3S", rec.Duration)
		assert.Equal(t, p.Title, rec.Title)
	}
	assert.Equal(t, 1, store.len())
}

func TestUpsertKeepsKnownDurationWhenPayloadUnknown(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	withDuration := payload("v1", false)
	withDuration.Duration = KnownDuration("PT30M")
	_, err := e.Upsert(ctx, withDuration)
	require.NoError(t, err)

	_, err = e.Upsert(ctx, payload("v1", false))
	require.NoError(t, err)

	rec, err := store.FindByVideoID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "PT30M", rec.Duration)
}

func TestUpsertFillsEmptyDuration(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	_, err := e.Upsert(ctx, payload("v1", true))
	require.NoError(t, err)
	p := payload("v1", false)
	p.Duration = KnownDuration("PT2H")
	_, err = e.Upsert(ctx, p)
	require.NoError(t, err)

	rec, err := store.FindByVideoID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "PT2H", rec.Duration)
}

func TestUpsertPublishedAtImmutable(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	_, err := e.Upsert(ctx, payload("v1", false))
	require.NoError(t, err)
	p := payload("v1", false)
	p.PublishedAt = "2030-01-01T00:00:00Z"
	_, err = e.Upsert(ctx, p)
	require.NoError(t, err)

	rec, err := store.FindByVideoID(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01T10:00:00Z", rec.PublishedAt)
}

func TestUpsertNormalizesPublishedAt(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store)
	p := payload("tz", false)
	p.PublishedAt = "2025-02-01T12:00:00+02:00"
	_, err := e.Upsert(context.Background(), p)
	require.NoError(t, err)
	rec, err := store.FindByVideoID(context.Background(), "tz")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01T10:00:00Z", rec.PublishedAt)
}

func TestUpsertRejectsInvalidPayload(t *testing.T) {
	e := NewEngine(newMemStore())
	ctx := context.Background()

	_, err := e.Upsert(ctx, payload("", false))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	p := payload("x", false)
	p.PublishedAt = "yesterday"
	_, err = e.Upsert(ctx, p)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSyncedAtNeverMovesBackwards(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := e.Upsert(ctx, payload("skew", true))
	require.NoError(t, err)

	now = now.Add(-time.Hour)
	_, err = e.Upsert(ctx, payload("skew", false))
	require.NoError(t, err)

	rec, err := store.FindByVideoID(ctx, "skew")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), rec.SyncedAt)
	assert.False(t, rec.IsLive, "a later write still lands even when the clock went back")
}

func TestUpsertBatchPartialFailure(t *testing.T) {
	store := newMemStore()
	store.failPut["bad"] = errBoom
	e := NewEngine(store, WithClock(newStepClock().Now), WithConcurrency(3))

	payloads := []Payload{payload("a", false), payload("bad", false), payload("", false), payload("c", false)}
	ids, err := e.UpsertBatch(context.Background(), payloads)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	assert.True(t, errors.Is(err, ErrInvalidPayload))
	require.Len(t, ids, 4)
	assert.NotZero(t, ids[0])
	assert.Zero(t, ids[1])
	assert.Zero(t, ids[2])
	assert.NotZero(t, ids[3])
	assert.Equal(t, 2, store.len())
}

func TestUpsertBatchLiveThenCompletedConverges(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now), WithConcurrency(8))

	payloads := []Payload{payload("x", true), payload("y", false), payload("x", false)}
	ids, err := e.UpsertBatch(context.Background(), payloads)
	require.NoError(t, err)
	assert.Equal(t, ids[0], ids[2])

	rec, err := store.FindByVideoID(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, rec.IsLive)
}

func TestUpsertBatchEmpty(t *testing.T) {
	ids, err := NewEngine(newMemStore()).UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSetLiveStatus(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	_, ok, err := e.SetLiveStatus(ctx, "missing", false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.puts, "absent record must not be written")

	p := payload("live1", true)
	p.Duration = KnownDuration("PT5M")
	id, err := e.Upsert(ctx, p)
	require.NoError(t, err)
	before, _ := store.FindByVideoID(ctx, "live1")

	gotID, ok, err := e.SetLiveStatus(ctx, "live1", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, gotID)

	after, _ := store.FindByVideoID(ctx, "live1")
	assert.False(t, after.IsLive)
	assert.True(t, after.SyncedAt.After(before.SyncedAt))
	assert.Equal(t, before.Title, after.Title)
	assert.Equal(t, "PT5M", after.Duration)
}

func TestConcurrentWritersConverge(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(live bool) {
			defer wg.Done()
			_, _ = e.Upsert(ctx, payload("race", live))
		}(i%2 == 0)
	}
	wg.Wait()
	assert.Equal(t, 1, store.len())
}

func TestReaderRecent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, WithClock(newStepClock().Now))
	r := NewReader(store)
	ctx := context.Background()

	page, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Streams)
	assert.Nil(t, page.LastSynced)

	for i, ts := range []string{"2025-01-01T00:00:00Z", "2025-01-03T00:00:00Z", "2025-01-02T00:00:00Z"} {
		p := payload(string(rune('a'+i)), false)
		p.PublishedAt = ts
		_, err := e.Upsert(ctx, p)
		require.NoError(t, err)
	}

	page, err = r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, page.Streams, 2)
	assert.Equal(t, "b", page.Streams[0].VideoID)
	assert.Equal(t, "c", page.Streams[1].VideoID)
	require.NotNil(t, page.LastSynced)
	assert.Equal(t, page.Streams[1].SyncedAt, *page.LastSynced, "c was written last")
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{-1, DefaultLimit},
		{0, DefaultLimit},
		{1, 1},
		{50, 50},
		{51, MaxLimit},
		{1000, MaxLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), "ClampLimit(%d)", tt.in)
	}
}

func TestNormalizeTimestampDropsFractionAndOffset(t *testing.T) {
	got, err := NormalizeTimestamp(" 2025-06-07T20:00:00.123+02:00 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-07T18:00:00Z", got)

	_, err = NormalizeTimestamp("")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
