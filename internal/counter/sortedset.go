package counter

import (
	"context"
	"sync"
)

// Entry is one member of a sorted set with its score.
type Entry struct {
	Member int
	Score  int64
}

// SortedSet is the persistence boundary of the counter store: an atomic
// sorted-set service keyed by item, member = slot index, score = count.
// A Redis-backed implementation satisfies this with ZINCRBY / ZRANGE
// WITHSCORES / DEL; the in-process MemorySortedSet below is the default.
type SortedSet interface {
	// IncrBy atomically adds delta to the member's score, creating the
	// member at delta if absent, and returns the new score.
	IncrBy(ctx context.Context, key string, member int, delta int64) (int64, error)

	// Range returns every member of the set with its score, in no
	// particular order. A missing key yields an empty slice.
	Range(ctx context.Context, key string) ([]Entry, error)

	// Reset removes the set entirely. Resetting a missing key is a no-op.
	Reset(ctx context.Context, key string) error
}

// MemorySortedSet is a mutex-guarded in-process SortedSet, safe for
// unbounded concurrent use.
type MemorySortedSet struct {
	mu   sync.RWMutex
	sets map[string]map[int]int64
}

func NewMemorySortedSet() *MemorySortedSet {
	return &MemorySortedSet{
		sets: make(map[string]map[int]int64),
	}
}

func (m *MemorySortedSet) IncrBy(ctx context.Context, key string, member int, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[int]int64)
		m.sets[key] = set
	}
	set[member] += delta
	return set[member], nil
}

func (m *MemorySortedSet) Range(ctx context.Context, key string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[key]
	entries := make([]Entry, 0, len(set))
	for member, score := range set {
		entries = append(entries, Entry{Member: member, Score: score})
	}
	return entries, nil
}

func (m *MemorySortedSet) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets, key)
	return nil
}
