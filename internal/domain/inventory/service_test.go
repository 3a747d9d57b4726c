package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/lock"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
)

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	catalog *MemoryCatalog
	shopID  uuid.UUID
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    NewMemoryRepository(lock.NewKeyedMutex()),
		catalog: NewMemoryCatalog(),
		shopID:  uuid.New(),
		clock:   time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.catalog, config.DefaultRules()).WithClock(func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	})
	return f
}

func (f *fixture) product(name string, price string, active bool) uuid.UUID {
	id := uuid.New()
	f.catalog.Put(&Product{ID: id, ShopID: f.shopID, Name: name, Price: decimal.RequireFromString(price), IsActive: active})
	return id
}

func saleOf(shopID, productID uuid.UUID, qty int) *transaction.Transaction {
	return &transaction.Transaction{
		ID:        uuid.New(),
		ShopID:    shopID,
		ProductID: &productID,
		Quantity:  qty,
		Price:     decimal.NewFromInt(10),
		Type:      transaction.TypeSale,
	}
}

func TestSaleFromOpeningStockAndReversal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product("Rice 5kg", "10", true)

	_, err := f.svc.OpenWithStock(ctx, f.shopID, productID, 20, nil)
	require.NoError(t, err)

	txn := saleOf(f.shopID, productID, 5)
	rec, err := f.svc.ApplyTransaction(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.CurrentQuantity)

	page, err := f.svc.Movements(ctx, f.shopID, MovementFilter{ProductID: &productID})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	latest := page.Items[0]
	assert.Equal(t, KindSale, latest.Kind)
	assert.Equal(t, -5, latest.QuantityChange)
	assert.Equal(t, 15, latest.QuantityAfter)

	reversed, err := f.svc.ReverseForTransaction(ctx, f.shopID, productID, txn.ID)
	require.NoError(t, err)
	assert.True(t, reversed)

	qty, err := f.svc.CurrentQuantity(ctx, f.shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 20, qty)

	page, err = f.svc.Movements(ctx, f.shopID, MovementFilter{ProductID: &productID})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, KindAdjustment, page.Items[0].Kind)
	assert.Equal(t, 5, page.Items[0].QuantityChange)
	require.NotNil(t, page.Items[1].ReversedBy)
	assert.Equal(t, page.Items[0].ID, *page.Items[1].ReversedBy)

	reversed, err = f.svc.ReverseForTransaction(ctx, f.shopID, productID, txn.ID)
	require.NoError(t, err)
	assert.False(t, reversed)

	page, err = f.svc.Movements(ctx, f.shopID, MovementFilter{ProductID: &productID})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	assert.NoError(t, f.svc.VerifyChain(ctx, f.shopID, productID))
}

func TestReverseWithoutMovementIsNoop(t *testing.T) {
	f := newFixture(t)
	reversed, err := f.svc.ReverseForTransaction(context.Background(), f.shopID, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.False(t, reversed)
}

func TestOpenWithStockIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := uuid.New()
	level := 3

	rec, err := f.svc.OpenWithStock(ctx, f.shopID, productID, 12, &level)
	require.NoError(t, err)
	assert.Equal(t, 12, rec.CurrentQuantity)
	assert.Equal(t, 3, *rec.ReorderLevel)

	rec, err = f.svc.OpenWithStock(ctx, f.shopID, productID, 99, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, rec.CurrentQuantity)

	page, err := f.svc.Movements(ctx, f.shopID, MovementFilter{ProductID: &productID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, KindOpeningStock, page.Items[0].Kind)
}

func TestOpenWithZeroStockWritesNoMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	rec, err := f.svc.OpenWithStock(ctx, f.shopID, productID, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CurrentQuantity)
	assert.Equal(t, config.DefaultRules().DefaultReorderLevel, *rec.ReorderLevel)

	page, err := f.svc.Movements(ctx, f.shopID, MovementFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestApplyEnforcesFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	_, err := f.svc.Apply(ctx, ApplyInput{ShopID: f.shopID, ProductID: productID, Kind: KindSale, Delta: -1000})
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, ApplyInput{ShopID: f.shopID, ProductID: productID, Kind: KindSale, Delta: -1})
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
	assert.True(t, errors.Is(err, ErrBelowFloor))

	qty, err := f.svc.CurrentQuantity(ctx, f.shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, -1000, qty)
}

func TestApplyRejectsZeroAndUnknownKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, ApplyInput{ShopID: f.shopID, ProductID: uuid.New(), Kind: KindSale})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	_, err = f.svc.Apply(ctx, ApplyInput{ShopID: f.shopID, ProductID: uuid.New(), Kind: "gift", Delta: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestAdjustManuallyRequiresActiveProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.product("Soap", "1.50", true)
	inactive := f.product("Old soap", "1.00", false)
	note := "broken on delivery"

	rec, err := f.svc.AdjustManually(ctx, f.shopID, active, -2, KindDamage, &note, "owner@shop")
	require.NoError(t, err)
	assert.Equal(t, -2, rec.CurrentQuantity)

	_, err = f.svc.AdjustManually(ctx, f.shopID, inactive, 1, KindAdjustment, nil, "owner@shop")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.svc.AdjustManually(ctx, uuid.New(), active, 1, KindAdjustment, nil, "owner@shop")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	page, err := f.svc.Movements(ctx, f.shopID, MovementFilter{ProductID: &active})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].ActorID)
	assert.Equal(t, "owner@shop", *page.Items[0].ActorID)
}

func TestLowStockAlertsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	low := f.product("Sugar", "2.00", true)
	empty := f.product("Salt", "0.50", true)
	plenty := f.product("Flour", "3.00", true)
	level := 10

	_, err := f.svc.OpenWithStock(ctx, f.shopID, low, 4, &level)
	require.NoError(t, err)
	_, err = f.svc.OpenWithStock(ctx, f.shopID, empty, 0, &level)
	require.NoError(t, err)
	_, err = f.svc.OpenWithStock(ctx, f.shopID, plenty, 50, &level)
	require.NoError(t, err)

	lows, err := f.svc.ListLowStock(ctx, f.shopID)
	require.NoError(t, err)
	require.Len(t, lows, 2)
	assert.Equal(t, empty, lows[0].ProductID)
	assert.Equal(t, low, lows[1].ProductID)

	alerts, err := f.svc.StockAlerts(ctx, f.shopID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	byProduct := map[uuid.UUID]StockAlert{}
	for _, a := range alerts {
		byProduct[a.ProductID] = a
	}
	assert.Equal(t, StatusOutOfStock, byProduct[empty].Status)
	assert.Equal(t, 20, byProduct[empty].SuggestedOrderQuantity)
	assert.Equal(t, StatusLowStock, byProduct[low].Status)
	assert.Equal(t, 6, byProduct[low].SuggestedOrderQuantity)

	stats, err := f.svc.Stats(ctx, f.shopID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.LowStockCount)
	assert.Equal(t, 1, stats.OutOfStockCount)
	assert.True(t, decimal.RequireFromString("158").Equal(stats.TotalStockValue), stats.TotalStockValue.String())

	list, err := f.svc.List(ctx, f.shopID, ListFilter{Search: "su", Page: pagination.Params{Page: 1, PageSize: 10}})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Sugar", list.Items[0].ProductName)
	assert.True(t, list.Items[0].IsLowStock)
}

func TestUpdateReorderLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	_, err := f.svc.UpdateReorderLevel(ctx, f.shopID, productID, 5)
	assert.ErrorIs(t, err, ErrInventoryNotFound)

	_, err = f.svc.GetOrCreate(ctx, f.shopID, productID)
	require.NoError(t, err)

	rec, err := f.svc.UpdateReorderLevel(ctx, f.shopID, productID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, *rec.ReorderLevel)

	_, err = f.svc.UpdateReorderLevel(ctx, f.shopID, productID, -1)
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestConcurrentAppliesKeepChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := 3
			if i%2 == 0 {
				delta = -2
			}
			_, _, err := f.repo.Append(ctx, Draft{
				ShopID: f.shopID, ProductID: productID, Kind: KindAdjustment,
				Delta: delta, ReorderLevel: 10, At: time.Now().UTC(),
			}, -1000)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	qty, err := f.svc.CurrentQuantity(ctx, f.shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 20*3-20*2, qty)
	assert.NoError(t, f.svc.VerifyChain(ctx, f.shopID, productID))
}

func TestMovementsFollowAppendOrderUnderClockSkew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product("Rice 5kg", "650", true)

	_, err := f.svc.OpenWithStock(ctx, f.shopID, p, 10, nil)
	require.NoError(t, err)

	f.clock = f.clock.Add(-time.Hour)
	_, err = f.svc.Apply(ctx, ApplyInput{ShopID: f.shopID, ProductID: p, Kind: KindDamage, Delta: -2})
	require.NoError(t, err)

	page, err := f.svc.Movements(ctx, f.shopID, MovementFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, KindDamage, page.Items[0].Kind)
	assert.Equal(t, 8, page.Items[0].QuantityAfter)
	assert.Equal(t, KindOpeningStock, page.Items[1].Kind)
	assert.NoError(t, f.svc.VerifyChain(ctx, f.shopID, p))
}
