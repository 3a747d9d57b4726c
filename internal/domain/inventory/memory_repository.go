package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/lock"
)

// MemoryRepository keeps records in a map and movements in a ledger.MemoryLog,
// serializing writers per (shop, product) through a lock.Locker.
type MemoryRepository struct {
	locker    lock.Locker
	movements *ledger.MemoryLog[Movement]

	mu      sync.RWMutex
	records map[ledger.Key]*Record
}

func NewMemoryRepository(locker lock.Locker) *MemoryRepository {
	return &MemoryRepository{
		locker:    locker,
		movements: ledger.NewMemoryLog[Movement](),
		records:   make(map[ledger.Key]*Record),
	}
}

func key(shopID, productID uuid.UUID) ledger.Key {
	return ledger.Key{Owner: shopID.String(), Subject: productID.String()}
}

func (r *MemoryRepository) Get(_ context.Context, shopID, productID uuid.UUID) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key(shopID, productID)]
	if !ok {
		return nil, ErrInventoryNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) ensure(shopID, productID uuid.UUID, reorderLevel int, at time.Time) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(shopID, productID)
	if rec, ok := r.records[k]; ok {
		return rec, false
	}
	level := reorderLevel
	rec := &Record{
		ID:           uuid.New(),
		ShopID:       shopID,
		ProductID:    productID,
		ReorderLevel: &level,
		LastUpdated:  at,
		CreatedAt:    at,
	}
	r.records[k] = rec
	return rec, true
}

func (r *MemoryRepository) Ensure(_ context.Context, shopID, productID uuid.UUID, reorderLevel int, at time.Time) (*Record, bool, error) {
	rec, created := r.ensure(shopID, productID, reorderLevel, at)
	r.mu.RLock()
	cp := *rec
	r.mu.RUnlock()
	return &cp, created, nil
}

func (r *MemoryRepository) Append(ctx context.Context, d Draft, floor int) (*Record, *Movement, error) {
	unlock, err := r.locker.Lock(ctx, "inventory:"+key(d.ShopID, d.ProductID).String())
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	return r.appendLocked(ctx, d, floor)
}

func (r *MemoryRepository) appendLocked(ctx context.Context, d Draft, floor int) (*Record, *Movement, error) {
	rec, _ := r.ensure(d.ShopID, d.ProductID, d.ReorderLevel, d.At)

	r.mu.RLock()
	current := rec.CurrentQuantity
	r.mu.RUnlock()

	next, err := ledger.NextTotal(current, d.Delta, floor)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (%v)", ErrBelowFloor, err)
	}

	m := d.movement(next)
	if err := r.movements.Append(ctx, *m); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	rec.CurrentQuantity = next
	rec.LastUpdated = d.At
	cp := *rec
	r.mu.Unlock()

	return &cp, m, nil
}

func (r *MemoryRepository) Reverse(ctx context.Context, shopID, productID, transactionID uuid.UUID, at time.Time, floor int) (*Movement, error) {
	unlock, err := r.locker.Lock(ctx, "inventory:"+key(shopID, productID).String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	matches, err := r.movements.Find(ctx, func(m Movement) bool {
		return m.ShopID == shopID && m.ProductID == productID &&
			m.TransactionID != nil && *m.TransactionID == transactionID && m.ReversedBy == nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	original := matches[len(matches)-1]

	_, compensating, err := r.appendLocked(ctx, reversalDraft(&original, at), floor)
	if err != nil {
		return nil, err
	}

	marked, err := r.movements.Annotate(ctx,
		func(m Movement) bool { return m.ID == original.ID },
		func(m Movement) (Movement, bool) {
			if m.ReversedBy != nil {
				return m, false
			}
			id := compensating.ID
			m.ReversedBy = &id
			return m, true
		})
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, ledger.ErrAlreadyReversed
	}
	return compensating, nil
}

func (r *MemoryRepository) SetReorderLevel(_ context.Context, shopID, productID uuid.UUID, level int, at time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key(shopID, productID)]
	if !ok {
		return nil, ErrInventoryNotFound
	}
	rec.ReorderLevel = &level
	rec.LastUpdated = at
	cp := *rec
	return &cp, nil
}

func (r *MemoryRepository) ListRecords(_ context.Context, shopID uuid.UUID) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0)
	for _, rec := range r.records {
		if rec.ShopID == shopID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentQuantity != out[j].CurrentQuantity {
			return out[i].CurrentQuantity < out[j].CurrentQuantity
		}
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out, nil
}

func (r *MemoryRepository) ListMovements(ctx context.Context, shopID uuid.UUID, filter MovementFilter) ([]*Movement, int, error) {
	found, err := r.movements.Find(ctx, func(m Movement) bool {
		if m.ShopID != shopID {
			return false
		}
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			return false
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			return false
		}
		if !filter.To.IsZero() && !m.CreatedAt.Before(filter.To) {
			return false
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}

	// newest first; Find returns append order
	out := make([]*Movement, 0, len(found))
	for i := len(found) - 1; i >= 0; i-- {
		m := found[i]
		out = append(out, &m)
	}

	page := filter.Page.Normalize()
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *MemoryRepository) Chain(ctx context.Context, shopID, productID uuid.UUID) ([]*Movement, error) {
	found, err := r.movements.Range(ctx, key(shopID, productID), time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]*Movement, len(found))
	for i := range found {
		out[i] = &found[i]
	}
	return out, nil
}
