package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/lock"
)

// MemoryRepository keeps the reward chains in a ledger.MemoryLog.
type MemoryRepository struct {
	locker  lock.Locker
	entries *ledger.MemoryLog[Entry]
}

func NewMemoryRepository(locker lock.Locker) *MemoryRepository {
	return &MemoryRepository{
		locker:  locker,
		entries: ledger.NewMemoryLog[Entry](),
	}
}

func shopKey(shopID uuid.UUID) ledger.Key {
	return ledger.Key{Owner: shopID.String()}
}

func (r *MemoryRepository) Balance(ctx context.Context, shopID uuid.UUID) (int, error) {
	latest, ok, err := r.entries.Latest(ctx, shopKey(shopID))
	if err != nil || !ok {
		return 0, err
	}
	return latest.BalanceAfter, nil
}

func (r *MemoryRepository) Append(ctx context.Context, shopID uuid.UUID, at time.Time, build BuildFunc) ([]*Entry, error) {
	unlock, err := r.locker.Lock(ctx, "reward:"+shopID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	balance, err := r.Balance(ctx, shopID)
	if err != nil {
		return nil, err
	}

	drafts, err := build(ctx, &memoryView{repo: r, shopID: shopID}, balance)
	if err != nil || len(drafts) == 0 {
		return nil, err
	}

	// validate the whole batch before writing any of it
	entries := make([]*Entry, 0, len(drafts))
	running := balance
	for _, d := range drafts {
		next, err := ledger.NextTotal(running, d.Points, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %d, change %d", ErrInsufficientBalance, running, d.Points)
		}
		entries = append(entries, d.entry(shopID, next, at))
		running = next
	}
	for _, d := range drafts {
		if d.Reverses == nil {
			continue
		}
		target := *d.Reverses
		found, err := r.entries.Find(ctx, func(e Entry) bool { return e.ID == target && e.ReversedBy == nil })
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, ledger.ErrAlreadyReversed
		}
	}

	for i, e := range entries {
		if err := r.entries.Append(ctx, *e); err != nil {
			return nil, err
		}
		if target := drafts[i].Reverses; target != nil {
			reversal := e.ID
			if _, err := r.entries.Annotate(ctx,
				func(x Entry) bool { return x.ID == *target },
				func(x Entry) (Entry, bool) {
					x.ReversedBy = &reversal
					return x, true
				}); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

func (r *MemoryRepository) ForTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error) {
	return r.find(ctx, func(e Entry) bool {
		return e.TransactionID != nil && *e.TransactionID == transactionID
	})
}

func (r *MemoryRepository) Between(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*Entry, error) {
	found, err := r.entries.Range(ctx, shopKey(shopID), from, to)
	if err != nil {
		return nil, err
	}
	return pointers(found), nil
}

func (r *MemoryRepository) Totals(ctx context.Context, shopID uuid.UUID) (int, int, error) {
	found, err := r.entries.Range(ctx, shopKey(shopID), time.Time{}, time.Time{})
	if err != nil {
		return 0, 0, err
	}
	earned, redeemed := 0, 0
	for _, e := range found {
		if e.PointsChange > 0 {
			earned += e.PointsChange
		} else {
			redeemed -= e.PointsChange
		}
	}
	return earned, redeemed, nil
}

func (r *MemoryRepository) History(ctx context.Context, shopID uuid.UUID, filter HistoryFilter) ([]*Entry, int, error) {
	found, err := r.entries.Range(ctx, shopKey(shopID), filter.From, filter.To)
	if err != nil {
		return nil, 0, err
	}
	newest := make([]*Entry, 0, len(found))
	for i := len(found) - 1; i >= 0; i-- {
		e := found[i]
		newest = append(newest, &e)
	}

	page := filter.Page.Normalize()
	total := len(newest)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return newest[start:end], total, nil
}

func (r *MemoryRepository) Chain(ctx context.Context, shopID uuid.UUID) ([]*Entry, error) {
	found, err := r.entries.Range(ctx, shopKey(shopID), time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return pointers(found), nil
}

func (r *MemoryRepository) find(ctx context.Context, match func(Entry) bool) ([]*Entry, error) {
	found, err := r.entries.Find(ctx, match)
	if err != nil {
		return nil, err
	}
	return pointers(found), nil
}

func pointers(entries []Entry) []*Entry {
	out := make([]*Entry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	return out
}

type memoryView struct {
	repo   *MemoryRepository
	shopID uuid.UUID
}

func (v *memoryView) SumPositiveSince(ctx context.Context, since time.Time) (int, error) {
	found, err := v.repo.entries.Range(ctx, shopKey(v.shopID), since, time.Time{})
	if err != nil {
		return 0, err
	}
	sum := 0
	for _, e := range found {
		if e.PointsChange > 0 {
			sum += e.PointsChange
		}
	}
	return sum, nil
}

func (v *memoryView) HasReasonSince(ctx context.Context, reason Reason, since time.Time) (bool, error) {
	found, err := v.repo.entries.Range(ctx, shopKey(v.shopID), since, time.Time{})
	if err != nil {
		return false, err
	}
	for _, e := range found {
		if e.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (v *memoryView) UnreversedCredits(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error) {
	return v.repo.find(ctx, func(e Entry) bool {
		return e.ShopID == v.shopID && e.TransactionID != nil && *e.TransactionID == transactionID &&
			e.PointsChange > 0 && e.ReversedBy == nil
	})
}
