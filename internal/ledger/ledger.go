// Package ledger is the append-only movement log shared by the inventory and
// reward ledgers.
//
// A log is partitioned by Key (owner entity, subject entity). Every entry
// carries its signed delta and the running total after it; for a fixed key the
// totals form a chain where each total equals the previous total plus the
// entry's delta. Entries are never edited: a mistake is undone by appending a
// compensating entry.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// Key partitions a log. Subject is empty for logs that only have an owner.
type Key struct {
	Owner   string
	Subject string
}

func (k Key) String() string {
	if k.Subject == "" {
		return k.Owner
	}
	return k.Owner + ":" + k.Subject
}

// Entry is one immutable movement in a chain.
type Entry interface {
	LedgerKey() Key
	LedgerTime() time.Time
	Delta() int
	RunningTotal() int
}

// Log is an append-only store of entries partitioned by key.
type Log[E Entry] interface {
	Append(ctx context.Context, e E) error
	Latest(ctx context.Context, key Key) (E, bool, error)
	Range(ctx context.Context, key Key, from, to time.Time) ([]E, error)
	Find(ctx context.Context, match func(E) bool) ([]E, error)
}

// NextTotal returns prev+delta, rejecting results below floor before anything
// is written.
func NextTotal(prev, delta, floor int) (int, error) {
	next := prev + delta
	if next < floor {
		return prev, fmt.Errorf("%w: %d%+d falls below %d", ErrInsufficientBalance, prev, delta, floor)
	}
	return next, nil
}

// VerifyChain checks that entries, in order, form a valid running-total chain
// starting from zero.
func VerifyChain[E Entry](entries []E) error {
	total := 0
	for i, e := range entries {
		if e.RunningTotal() != total+e.Delta() {
			return fmt.Errorf("%w: entry %d of %s has total %d, expected %d",
				ErrChainBroken, i, e.LedgerKey(), e.RunningTotal(), total+e.Delta())
		}
		total = e.RunningTotal()
	}
	return nil
}

// SumDeltas adds the deltas of entries.
func SumDeltas[E Entry](entries []E) int {
	sum := 0
	for _, e := range entries {
		sum += e.Delta()
	}
	return sum
}
