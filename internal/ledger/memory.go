package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog keeps entries in process memory. It is safe for concurrent use,
// but callers that read the latest total and then append must serialize per
// key themselves (see lock.KeyedMutex).
type MemoryLog[E Entry] struct {
	mu      sync.RWMutex
	byKey   map[Key][]E
	ordered []position
}

type position struct {
	key   Key
	index int
}

func NewMemoryLog[E Entry]() *MemoryLog[E] {
	return &MemoryLog[E]{
		byKey:   make(map[Key][]E),
		ordered: make([]position, 0),
	}
}

// Append rejects an entry that does not extend the key's chain.
func (l *MemoryLog[E]) Append(_ context.Context, e E) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := e.LedgerKey()
	prev := 0
	if entries := l.byKey[key]; len(entries) > 0 {
		prev = entries[len(entries)-1].RunningTotal()
	}
	if e.RunningTotal() != prev+e.Delta() {
		return fmt.Errorf("%w: %s expected total %d, got %d", ErrChainBroken, key, prev+e.Delta(), e.RunningTotal())
	}

	l.byKey[key] = append(l.byKey[key], e)
	l.ordered = append(l.ordered, position{key: key, index: len(l.byKey[key]) - 1})
	return nil
}

func (l *MemoryLog[E]) Latest(_ context.Context, key Key) (E, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var zero E
	entries := l.byKey[key]
	if len(entries) == 0 {
		return zero, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// Range returns entries of key with from <= time < to in append order. A zero
// bound is open.
func (l *MemoryLog[E]) Range(_ context.Context, key Key, from, to time.Time) ([]E, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]E, 0)
	for _, e := range l.byKey[key] {
		if inWindow(e.LedgerTime(), from, to) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Find scans every key in append order.
func (l *MemoryLog[E]) Find(_ context.Context, match func(E) bool) ([]E, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]E, 0)
	for _, p := range l.ordered {
		if e := l.byKey[p.key][p.index]; match(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Annotate rewrites the first entry accepted by match using fn. fn may only
// touch bookkeeping fields; the delta and running total must be unchanged.
// It reports whether an entry was rewritten.
func (l *MemoryLog[E]) Annotate(_ context.Context, match func(E) bool, fn func(E) (E, bool)) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.ordered {
		e := l.byKey[p.key][p.index]
		if !match(e) {
			continue
		}
		updated, ok := fn(e)
		if !ok {
			return false, nil
		}
		if updated.Delta() != e.Delta() || updated.RunningTotal() != e.RunningTotal() || updated.LedgerKey() != e.LedgerKey() {
			return false, fmt.Errorf("%w: annotate may not change amounts", ErrChainBroken)
		}
		l.byKey[p.key][p.index] = updated
		return true, nil
	}
	return false, nil
}

// Keys lists every key that has at least one entry.
func (l *MemoryLog[E]) Keys() []Key {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]Key, 0, len(l.byKey))
	for k := range l.byKey {
		keys = append(keys, k)
	}
	return keys
}

func inWindow(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
