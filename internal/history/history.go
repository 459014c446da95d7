// Package history records cache load and clear events so operators can see
// when the datasets were last refreshed and why a refresh failed.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

// Store is a load-history backend. Both implementations observe the cache
// and can be purged by the refresh scheduler.
type Store interface {
	core.LoadObserver
	core.HistoryPurger
	Recent(ctx context.Context, limit int) ([]core.LoadEvent, error)
}

// MemoryStore keeps the most recent events in a fixed-size ring.
type MemoryStore struct {
	mu     sync.Mutex
	events []core.LoadEvent
	next   int
	full   bool
}

// NewMemoryStore returns a ring holding up to size events.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 100
	}
	return &MemoryStore{events: make([]core.LoadEvent, size)}
}

// ObserveLoad implements core.LoadObserver.
func (m *MemoryStore) ObserveLoad(_ context.Context, ev core.LoadEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = ev
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
}

// Recent returns up to limit events, newest first. limit <= 0 returns all.
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]core.LoadEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]core.LoadEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.events)) % len(m.events)
		out = append(out, m.events[idx])
	}
	return out, nil
}

// Purge drops events that started before the cutoff.
func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.events)
	}

	// Rebuild oldest-first, keeping events at or after the cutoff.
	kept := make([]core.LoadEvent, 0, n)
	for i := n; i >= 1; i-- {
		ev := m.events[(m.next-i+len(m.events))%len(m.events)]
		if !ev.StartedAt.Before(before) {
			kept = append(kept, ev)
		}
	}

	purged := int64(n - len(kept))
	if purged == 0 {
		return 0, nil
	}

	size := len(m.events)
	m.events = make([]core.LoadEvent, size)
	copy(m.events, kept)
	m.next = len(kept) % size
	m.full = len(kept) == size
	return purged, nil
}
