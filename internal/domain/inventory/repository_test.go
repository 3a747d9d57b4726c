package inventory

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasale/pasale-api/internal/config"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("skipping: cannot connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newPostgresService(t *testing.T, clock *time.Time) (*Service, *PostgresRepository) {
	t.Helper()
	repo := NewRepository(setupTestDB(t))
	svc := NewService(repo, NewMemoryCatalog(), config.DefaultRules()).
		WithClock(func() time.Time { return *clock })
	return svc, repo
}

func TestPostgresSaleAndReversal(t *testing.T) {
	clock := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	svc, repo := newPostgresService(t, &clock)
	ctx := context.Background()
	shopID, productID := uuid.New(), uuid.New()

	_, err := svc.OpenWithStock(ctx, shopID, productID, 20, nil)
	require.NoError(t, err)

	sale := saleOf(shopID, productID, 5)
	rec, err := svc.ApplyTransaction(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.CurrentQuantity)

	// this instance's clock lags the one that wrote the sale
	clock = clock.Add(-time.Hour)
	reversed, err := svc.ReverseForTransaction(ctx, shopID, productID, sale.ID)
	require.NoError(t, err)
	assert.True(t, reversed)

	reversed, err = svc.ReverseForTransaction(ctx, shopID, productID, sale.ID)
	require.NoError(t, err)
	assert.False(t, reversed)

	stored, err := repo.Get(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.CurrentQuantity)

	chain, err := repo.Chain(ctx, shopID, productID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, KindOpeningStock, chain[0].Kind)
	assert.Equal(t, KindSale, chain[1].Kind)
	require.NotNil(t, chain[1].ReversedBy)
	assert.Equal(t, chain[2].ID, *chain[1].ReversedBy)
	assert.Equal(t, KindAdjustment, chain[2].Kind)
	assert.Equal(t, 5, chain[2].QuantityChange)
	assert.NoError(t, svc.VerifyChain(ctx, shopID, productID))

	page, err := svc.Movements(ctx, shopID, MovementFilter{ProductID: &productID})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, KindAdjustment, page.Items[0].Kind)
}

func TestPostgresConcurrentAppliesKeepChain(t *testing.T) {
	clock := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	svc, repo := newPostgresService(t, &clock)
	ctx := context.Background()
	shopID, productID := uuid.New(), uuid.New()

	_, err := svc.OpenWithStock(ctx, shopID, productID, 40, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, ApplyInput{ShopID: shopID, ProductID: productID, Kind: KindSale, Delta: -1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.CurrentQuantity)
	assert.NoError(t, svc.VerifyChain(ctx, shopID, productID))
}

func TestPostgresApplyBelowFloorWritesNothing(t *testing.T) {
	clock := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	svc, repo := newPostgresService(t, &clock)
	ctx := context.Background()
	shopID, productID := uuid.New(), uuid.New()

	_, err := svc.OpenWithStock(ctx, shopID, productID, 3, nil)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, ApplyInput{ShopID: shopID, ProductID: productID, Kind: KindTheft, Delta: -2000})
	assert.ErrorIs(t, err, ErrBelowFloor)

	chain, err := repo.Chain(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	stored, err := repo.Get(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.CurrentQuantity)
}
