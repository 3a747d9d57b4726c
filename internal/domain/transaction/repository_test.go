package transaction

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	shopID := uuid.New()
	txn := &Transaction{
		ID:        uuid.New(),
		ShopID:    shopID,
		Quantity:  3,
		Price:     decimal.RequireFromString("2.50"),
		Total:     decimal.RequireFromString("7.50"),
		Type:      TypeSale,
		Version:   1,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, txn))

	got, err := repo.GetByID(ctx, shopID, txn.ID)
	require.NoError(t, err)
	assert.True(t, txn.Total.Equal(got.Total))
	assert.Equal(t, TypeSale, got.Type)

	require.NoError(t, repo.Delete(ctx, shopID, txn.ID))
	assert.ErrorIs(t, repo.Delete(ctx, shopID, txn.ID), ErrTransactionNotFound)
}
