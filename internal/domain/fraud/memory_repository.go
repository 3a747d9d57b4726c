package fraud

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps alerts and scores in process. Reads return copies.
type MemoryRepository struct {
	mu     sync.RWMutex
	alerts []*Alert
	byID   map[uuid.UUID]*Alert
	scores map[uuid.UUID]*Score
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]*Alert),
		scores: make(map[uuid.UUID]*Score),
	}
}

func copyAlert(a *Alert) *Alert {
	c := *a
	return &c
}

func (r *MemoryRepository) CreateAlerts(_ context.Context, alerts []*Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range alerts {
		c := copyAlert(a)
		r.alerts = append(r.alerts, c)
		r.byID[c.ID] = c
	}
	return nil
}

func (r *MemoryRepository) GetAlert(_ context.Context, id uuid.UUID) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (r *MemoryRepository) UpdateReview(_ context.Context, a *Alert, from Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[a.ID]
	if !ok {
		return false, ErrAlertNotFound
	}
	if stored.Status != from {
		return false, nil
	}
	stored.Status = a.Status
	stored.Notes = a.Notes
	stored.ReviewedAt = a.ReviewedAt
	stored.ReviewedBy = a.ReviewedBy
	return true, nil
}

func (r *MemoryRepository) ListAlerts(_ context.Context, filter AlertFilter) ([]*Alert, int, error) {
	r.mu.RLock()
	var matched []*Alert
	for _, a := range r.alerts {
		switch {
		case filter.ShopID != nil && a.ShopID != *filter.ShopID,
			filter.RiskLevel != nil && a.RiskLevel != *filter.RiskLevel,
			filter.Status != nil && a.Status != *filter.Status,
			!filter.From.IsZero() && a.CreatedAt.Before(filter.From),
			!filter.To.IsZero() && !a.CreatedAt.Before(filter.To):
			continue
		}
		matched = append(matched, copyAlert(a))
	}
	r.mu.RUnlock()

	// newest first, insertion order breaks ties
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := filter.Page.Normalize()
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepository) AlertsSince(_ context.Context, shopID uuid.UUID, since time.Time) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Alert
	for _, a := range r.alerts {
		if a.ShopID == shopID && !a.CreatedAt.Before(since) {
			out = append(out, copyAlert(a))
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountAlerts(_ context.Context, shopID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.alerts {
		if a.ShopID == shopID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) GetScore(_ context.Context, shopID uuid.UUID) (*Score, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scores[shopID]
	if !ok {
		return nil, ErrScoreNotFound
	}
	c := *s
	return &c, nil
}

func (r *MemoryRepository) EnsureScore(ctx context.Context, shopID uuid.UUID, at time.Time) (*Score, error) {
	r.mu.Lock()
	if _, ok := r.scores[shopID]; !ok {
		r.scores[shopID] = newScore(shopID, at)
	}
	r.mu.Unlock()
	return r.GetScore(ctx, shopID)
}

func (r *MemoryRepository) SaveScore(_ context.Context, s *Score) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scores[s.ShopID]; !ok {
		return ErrScoreNotFound
	}
	c := *s
	r.scores[s.ShopID] = &c
	return nil
}

func (r *MemoryRepository) ScoresAtLeast(_ context.Context, threshold float64) ([]*Score, error) {
	r.mu.RLock()
	var out []*Score
	for _, s := range r.scores {
		if s.Overall >= threshold {
			c := *s
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Overall > out[j].Overall })
	return out, nil
}

func (r *MemoryRepository) ShopIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for id := range r.scores {
		add(id)
	}
	for _, a := range r.alerts {
		add(a.ShopID)
	}
	return out, nil
}
