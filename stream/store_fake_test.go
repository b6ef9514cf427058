package stream

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// memStore is an in-memory Store with the same CAS semantics as the SQL store.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]Record
	nextID  int64
	failPut map[string]error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]Record), failPut: make(map[string]error)}
}

func (m *memStore) FindByVideoID(_ context.Context, videoID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[videoID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PublishedAt != out[j].PublishedAt {
			return out[i].PublishedAt > out[j].PublishedAt
		}
		return out[i].VideoID > out[j].VideoID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Put(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if err := m.failPut[rec.VideoID]; err != nil {
		return Record{}, err
	}
	cur, ok := m.rows[rec.VideoID]
	if !ok {
		m.nextID++
		rec.ID = m.nextID
		m.rows[rec.VideoID] = rec
		return rec, nil
	}
	if rec.SyncedAt.Before(cur.SyncedAt) {
		return cur, nil
	}
	rec.ID = cur.ID
	m.rows[rec.VideoID] = rec
	return rec, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

var errBoom = errors.New("boom")
