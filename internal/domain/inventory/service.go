package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/logger"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
)

// Service is the inventory ledger.
type Service struct {
	repo    Repository
	catalog ProductCatalog
	rules   config.Rules
	now     func() time.Time
}

func NewService(repo Repository, catalog ProductCatalog, rules config.Rules) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		rules:   rules,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCreate returns the record, creating it at quantity zero if needed.
func (s *Service) GetOrCreate(ctx context.Context, shopID, productID uuid.UUID) (*Record, error) {
	rec, _, err := s.repo.Ensure(ctx, shopID, productID, s.rules.DefaultReorderLevel, s.now())
	return rec, err
}

// OpenWithStock is idempotent: an existing record is returned unchanged.
func (s *Service) OpenWithStock(ctx context.Context, shopID, productID uuid.UUID, openingQty int, reorderLevel *int) (*Record, error) {
	if openingQty < 0 {
		return nil, ErrNegativeOpening
	}
	level := s.rules.DefaultReorderLevel
	if reorderLevel != nil {
		if *reorderLevel < 0 {
			return nil, ErrNegativeReorder
		}
		level = *reorderLevel
	}

	rec, created, err := s.repo.Ensure(ctx, shopID, productID, level, s.now())
	if err != nil || !created || openingQty == 0 {
		return rec, err
	}

	note := "Opening stock"
	rec, _, err = s.repo.Append(ctx, Draft{
		ShopID:       shopID,
		ProductID:    productID,
		Kind:         KindOpeningStock,
		Delta:        openingQty,
		Note:         &note,
		ReorderLevel: level,
		At:           s.now(),
	}, s.rules.InventoryFloor)
	return rec, err
}

// ApplyInput is one signed quantity change.
type ApplyInput struct {
	ShopID        uuid.UUID
	ProductID     uuid.UUID
	Kind          MovementKind
	Delta         int
	TransactionID *uuid.UUID
	Note          *string
	ActorID       *string
}

// Apply adds Delta to the record and appends the matching movement; both are
// persisted together or not at all.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*Record, error) {
	if in.Delta == 0 {
		return nil, ErrZeroChange
	}
	if _, err := ParseMovementKind(string(in.Kind)); err != nil {
		return nil, err
	}

	rec, m, err := s.repo.Append(ctx, Draft{
		ShopID:        in.ShopID,
		ProductID:     in.ProductID,
		Kind:          in.Kind,
		Delta:         in.Delta,
		TransactionID: in.TransactionID,
		Note:          in.Note,
		ActorID:       in.ActorID,
		ReorderLevel:  s.rules.DefaultReorderLevel,
		At:            s.now(),
	}, s.rules.InventoryFloor)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug().
		Str("shop_id", in.ShopID.String()).
		Str("product_id", in.ProductID.String()).
		Str("movement_type", string(m.Kind)).
		Int("quantity_change", m.QuantityChange).
		Int("quantity_after", m.QuantityAfter).
		Msg("inventory movement appended")
	return rec, nil
}

// ApplyTransaction applies the stock effect of t. The transaction must
// reference a product.
func (s *Service) ApplyTransaction(ctx context.Context, t *transaction.Transaction) (*Record, error) {
	if !t.HasProduct() {
		return nil, ledger.Invalid("product_id", "transaction has no product")
	}
	kind, delta, err := ForTransaction(t.Type, t.Quantity)
	if err != nil {
		return nil, err
	}
	id := t.ID
	return s.Apply(ctx, ApplyInput{
		ShopID:        t.ShopID,
		ProductID:     *t.ProductID,
		Kind:          kind,
		Delta:         delta,
		TransactionID: &id,
	})
}

// ReverseForTransaction appends an adjustment negating the movement tagged
// with transactionID. It returns false when there is nothing left to reverse.
func (s *Service) ReverseForTransaction(ctx context.Context, shopID, productID, transactionID uuid.UUID) (bool, error) {
	m, err := s.repo.Reverse(ctx, shopID, productID, transactionID, s.now(), s.rules.InventoryFloor)
	if errors.Is(err, ledger.ErrAlreadyReversed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// AdjustManually requires an active product of the shop.
func (s *Service) AdjustManually(ctx context.Context, shopID, productID uuid.UUID, delta int, kind MovementKind, note *string, actor string) (*Record, error) {
	if kind == KindOpeningStock {
		return nil, ErrOpeningStockKind
	}
	product, err := s.catalog.Get(ctx, shopID, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, ErrProductNotFound
	}

	var actorID *string
	if actor != "" {
		actorID = &actor
	}
	return s.Apply(ctx, ApplyInput{
		ShopID:    shopID,
		ProductID: productID,
		Kind:      kind,
		Delta:     delta,
		Note:      note,
		ActorID:   actorID,
	})
}

// ListLowStock returns records at or below their reorder level, lowest first.
func (s *Service) ListLowStock(ctx context.Context, shopID uuid.UUID) ([]*Record, error) {
	records, err := s.repo.ListRecords(ctx, shopID)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0)
	for _, rec := range records {
		if rec.IsLowStock() {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CurrentQuantity < out[j].CurrentQuantity })
	return out, nil
}

// CurrentQuantity is zero for products that were never stocked.
func (s *Service) CurrentQuantity(ctx context.Context, shopID, productID uuid.UUID) (int, error) {
	rec, err := s.repo.Get(ctx, shopID, productID)
	if errors.Is(err, ErrInventoryNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.CurrentQuantity, nil
}

// ListFilter narrows the stock listing.
type ListFilter struct {
	LowStockOnly   bool
	OutOfStockOnly bool
	Search         string
	Page           pagination.Params
}

// stockItems joins records with their active products.
func (s *Service) stockItems(ctx context.Context, shopID uuid.UUID) ([]StockItem, error) {
	records, err := s.repo.ListRecords(ctx, shopID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(records))
	for i, rec := range records {
		ids[i] = rec.ProductID
	}
	products, err := s.catalog.Lookup(ctx, shopID, ids)
	if err != nil {
		return nil, err
	}

	items := make([]StockItem, 0, len(records))
	for _, rec := range records {
		p, ok := products[rec.ProductID]
		if !ok || !p.IsActive {
			continue
		}
		items = append(items, newStockItem(rec, p))
	}
	return items, nil
}

func newStockItem(rec *Record, p *Product) StockItem {
	return StockItem{
		Record:      *rec,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		StockValue:  p.Price.Mul(decimal.NewFromInt(int64(rec.CurrentQuantity))).Round(2),
		IsLowStock:  rec.IsLowStock(),
	}
}

func (s *Service) List(ctx context.Context, shopID uuid.UUID, filter ListFilter) (pagination.Page[StockItem], error) {
	items, err := s.stockItems(ctx, shopID)
	if err != nil {
		return pagination.Page[StockItem]{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	filtered := make([]StockItem, 0, len(items))
	for _, it := range items {
		if filter.LowStockOnly && !it.IsLowStock {
			continue
		}
		if filter.OutOfStockOnly && !it.IsOutOfStock() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(it.ProductName), search) {
			continue
		}
		filtered = append(filtered, it)
	}
	return pagination.Slice(filtered, filter.Page), nil
}

func (s *Service) Get(ctx context.Context, shopID, productID uuid.UUID) (*StockItem, error) {
	rec, err := s.repo.Get(ctx, shopID, productID)
	if err != nil {
		return nil, err
	}
	p, err := s.catalog.Get(ctx, shopID, productID)
	if err != nil {
		return nil, err
	}
	item := newStockItem(rec, p)
	return &item, nil
}

func (s *Service) Movements(ctx context.Context, shopID uuid.UUID, filter MovementFilter) (pagination.Page[*Movement], error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.ListMovements(ctx, shopID, filter)
	if err != nil {
		return pagination.Page[*Movement]{}, err
	}
	return pagination.Page[*Movement]{
		Items:    items,
		Total:    total,
		Page:     filter.Page.Page,
		PageSize: filter.Page.PageSize,
	}, nil
}

func (s *Service) Stats(ctx context.Context, shopID uuid.UUID) (*Stats, error) {
	items, err := s.stockItems(ctx, shopID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{TotalProducts: len(items), TotalStockValue: decimal.Zero}
	for _, it := range items {
		stats.TotalStockValue = stats.TotalStockValue.Add(it.StockValue)
		if it.IsLowStock {
			stats.LowStockCount++
		}
		if it.IsOutOfStock() {
			stats.OutOfStockCount++
		}
	}
	stats.TotalStockValue = stats.TotalStockValue.Round(2)
	return stats, nil
}

// StockAlerts suggests twice the reorder level for empty stock and the gap
// to the reorder level otherwise.
func (s *Service) StockAlerts(ctx context.Context, shopID uuid.UUID) ([]StockAlert, error) {
	items, err := s.stockItems(ctx, shopID)
	if err != nil {
		return nil, err
	}
	alerts := make([]StockAlert, 0)
	for _, it := range items {
		if !it.IsLowStock {
			continue
		}
		level := it.reorderLevel()
		alert := StockAlert{
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			CurrentQuantity: it.CurrentQuantity,
			ReorderLevel:    level,
		}
		if it.IsOutOfStock() {
			alert.Status = StatusOutOfStock
			alert.SuggestedOrderQuantity = level * 2
		} else {
			alert.Status = StatusLowStock
			alert.SuggestedOrderQuantity = level - it.CurrentQuantity
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (s *Service) UpdateReorderLevel(ctx context.Context, shopID, productID uuid.UUID, level int) (*Record, error) {
	if level < 0 {
		return nil, ErrNegativeReorder
	}
	return s.repo.SetReorderLevel(ctx, shopID, productID, level, s.now())
}

// VerifyChain checks the stored movements of one key against its record.
func (s *Service) VerifyChain(ctx context.Context, shopID, productID uuid.UUID) error {
	chain, err := s.repo.Chain(ctx, shopID, productID)
	if err != nil {
		return err
	}
	if err := ledger.VerifyChain(chain); err != nil {
		return err
	}
	rec, err := s.repo.Get(ctx, shopID, productID)
	if errors.Is(err, ErrInventoryNotFound) && len(chain) == 0 {
		return nil
	}
	if err != nil {
		return err
	}
	if ledger.SumDeltas(chain) != rec.CurrentQuantity {
		return ledger.ErrChainBroken
	}
	return nil
}
