// Package counter holds the shared slot counters: a sorted-set persistence
// boundary, and a store adapter that exposes atomic increments and dense,
// ordered snapshots over it.
package counter

import (
	"context"
	"errors"
	"fmt"
)

// Item is one configured counter: a small integer id and a fixed number
// of positional slots. The item table is immutable after construction.
type Item struct {
	ID    int
	Slots int
}

// Store adapts the sparse sorted-set service to the protocol's view:
// increments are atomic per slot, snapshots are always dense and ordered
// by slot index ascending. Counts only grow; the sole reset path is
// Initialize.
type Store struct {
	set   SortedSet
	items []Item
	index map[int]Item
}

// NewStore builds a store over the given backing set and item table.
// Item order is preserved; it fixes the iteration order of Items and
// therefore the initial-sync order of stream sessions.
func NewStore(set SortedSet, items []Item) (*Store, error) {
	if len(items) == 0 {
		return nil, errors.New("counter: no items configured")
	}
	index := make(map[int]Item, len(items))
	for _, it := range items {
		if it.ID < 0 || it.ID > 65535 {
			return nil, fmt.Errorf("counter: item id %d outside uint16 range", it.ID)
		}
		if it.Slots < 1 || it.Slots > 65535 {
			return nil, fmt.Errorf("counter: item %d has invalid slot count %d", it.ID, it.Slots)
		}
		if _, dup := index[it.ID]; dup {
			return nil, fmt.Errorf("counter: duplicate item id %d", it.ID)
		}
		index[it.ID] = it
	}
	cp := make([]Item, len(items))
	copy(cp, items)
	return &Store{set: set, items: cp, index: index}, nil
}

// Items returns the configured items in configuration order.
func (s *Store) Items() []Item {
	cp := make([]Item, len(s.items))
	copy(cp, s.items)
	return cp
}

// Slots returns the slot count for an item, or false if unknown.
func (s *Store) Slots(item int) (int, bool) {
	it, ok := s.index[item]
	return it.Slots, ok
}

// Increment atomically adds one to a single slot and returns the new
// count. Unknown items and out-of-range slots fail without touching the
// backing set.
func (s *Store) Increment(ctx context.Context, item, slot int) (int64, error) {
	it, ok := s.index[item]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownItem, item)
	}
	if slot < 0 || slot >= it.Slots {
		return 0, fmt.Errorf("%w: slot %d of item %d (slots 0..%d)", ErrSlotOutOfRange, slot, item, it.Slots-1)
	}
	n, err := s.set.IncrBy(ctx, s.key(item), slot, 1)
	if err != nil {
		return 0, wrapBackend("increment", err)
	}
	return n, nil
}

// Snapshot returns the item's full slot vector, dense and ordered by slot
// index ascending: exactly Slots(item) entries, absent slots read as zero.
// Counts are reported at wire width (low 16 bits of the stored score).
func (s *Store) Snapshot(ctx context.Context, item int) ([]uint16, error) {
	it, ok := s.index[item]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownItem, item)
	}
	entries, err := s.set.Range(ctx, s.key(item))
	if err != nil {
		return nil, wrapBackend("snapshot", err)
	}
	counts := make([]uint16, it.Slots)
	for _, e := range entries {
		if e.Member < 0 || e.Member >= it.Slots {
			continue
		}
		counts[e.Member] = uint16(e.Score)
	}
	return counts, nil
}

// Initialize resets every slot of the item to zero. Idempotent; safe to
// call before any Increment.
func (s *Store) Initialize(ctx context.Context, item int) error {
	if _, ok := s.index[item]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownItem, item)
	}
	if err := s.set.Reset(ctx, s.key(item)); err != nil {
		return wrapBackend("initialize", err)
	}
	return nil
}

// InitializeAll resets every configured item.
func (s *Store) InitializeAll(ctx context.Context) error {
	for _, it := range s.items {
		if err := s.Initialize(ctx, it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) key(item int) string {
	return fmt.Sprintf("item:%d", item)
}

// wrapBackend tags backing-set failures as ErrUnavailable so callers can
// distinguish them from validation errors and retry. Context errors pass
// through untouched.
func wrapBackend(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("counter: %s: %w", op, err)
	}
	return fmt.Errorf("counter: %s: %w (%v)", op, ErrUnavailable, err)
}
