package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps transactions in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Transaction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*Transaction)}
}

func (r *MemoryRepository) Create(_ context.Context, t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *t
	r.items[t.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, shopID, id uuid.UUID) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.items[id]
	if !ok || t.ShopID != shopID {
		return nil, ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) Delete(_ context.Context, shopID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok || t.ShopID != shopID {
		return ErrTransactionNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) CountBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) (int, error) {
	items, err := r.ListBetween(ctx, shopID, from, to)
	return len(items), err
}

func (r *MemoryRepository) ListBetween(_ context.Context, shopID uuid.UUID, from, to time.Time) ([]*Transaction, error) {
	return r.filter(func(t *Transaction) bool {
		return t.ShopID == shopID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to)
	}), nil
}

func (r *MemoryRepository) ListForProduct(_ context.Context, shopID, productID uuid.UUID, since time.Time) ([]*Transaction, error) {
	return r.filter(func(t *Transaction) bool {
		return t.ShopID == shopID && t.ProductID != nil && *t.ProductID == productID && !t.CreatedAt.Before(since)
	}), nil
}

func (r *MemoryRepository) filter(match func(*Transaction) bool) []*Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Transaction, 0)
	for _, t := range r.items {
		if match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
