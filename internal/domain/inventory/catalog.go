package inventory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/ledger"
)

// Product is the slice of product identity the inventory ledger needs.
// Product CRUD lives elsewhere.
type Product struct {
	ID       uuid.UUID       `db:"id"`
	ShopID   uuid.UUID       `db:"shop_id"`
	Name     string          `db:"product_name"`
	Price    decimal.Decimal `db:"price"`
	IsActive bool            `db:"is_active"`
}

type ProductCatalog interface {
	// Get returns ErrProductNotFound when the product is not in the shop.
	Get(ctx context.Context, shopID, productID uuid.UUID) (*Product, error)
	Lookup(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
}

type PostgresCatalog struct {
	db *sqlx.DB
}

func NewCatalog(db *sqlx.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Get(ctx context.Context, shopID, productID uuid.UUID) (*Product, error) {
	var p Product
	err := c.db.GetContext(ctx, &p, `
		SELECT id, shop_id, product_name, price, is_active
		FROM products WHERE id = $1 AND shop_id = $2
	`, productID, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, ledger.Internal("get product", err)
	}
	return &p, nil
}

func (c *PostgresCatalog) Lookup(ctx context.Context, shopID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	out := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	var products []*Product
	err := c.db.SelectContext(ctx, &products, `
		SELECT id, shop_id, product_name, price, is_active
		FROM products WHERE shop_id = $1 AND id = ANY($2::uuid[])
	`, shopID, pq.Array(raw))
	if err != nil {
		return nil, ledger.Internal("lookup products", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// MemoryCatalog is a ProductCatalog for tests and the memory store driver.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[uuid.UUID]*Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[uuid.UUID]*Product)}
}

func (c *MemoryCatalog) Put(p *Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.products[p.ID] = &cp
}

func (c *MemoryCatalog) Get(_ context.Context, shopID, productID uuid.UUID) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok || p.ShopID != shopID {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *MemoryCatalog) Lookup(_ context.Context, shopID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[uuid.UUID]*Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok && p.ShopID == shopID {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}
