package transaction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pasale/pasale-api/internal/ledger"
)

const queryTimeout = 3 * time.Second

// Repository persists transactions and answers the history reads the reward
// and fraud ledgers need.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, shopID, id uuid.UUID) (*Transaction, error)
	Delete(ctx context.Context, shopID, id uuid.UUID) error
	CountBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) (int, error)
	ListBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*Transaction, error)
	ListForProduct(ctx context.Context, shopID, productID uuid.UUID, since time.Time) ([]*Transaction, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `id, shop_id, product_id, quantity, price, total, type, device_id, is_synced, version, created_at`

func (r *PostgresRepository) Create(ctx context.Context, t *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx2, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :shop_id, :product_id, :quantity, :price, :total, :type, :device_id, :is_synced, :version, :created_at)
	`, t)
	if err != nil {
		return ledger.Internal("insert transaction", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, shopID, id uuid.UUID) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND shop_id = $2`, id, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, ledger.Internal("get transaction", err)
	}
	return &t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, shopID, id uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `DELETE FROM transactions WHERE id = $1 AND shop_id = $2`, id, shopID)
	if err != nil {
		return ledger.Internal("delete transaction", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return ledger.Internal("rows affected", err)
	}
	if rows == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) CountBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx2, &n, `
		SELECT COUNT(*) FROM transactions
		WHERE shop_id = $1 AND created_at >= $2 AND created_at < $3
	`, shopID, from, to)
	if err != nil {
		return 0, ledger.Internal("count transactions", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Transaction
	err := r.db.SelectContext(ctx2, &out, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE shop_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`, shopID, from, to)
	if err != nil {
		return nil, ledger.Internal("list transactions", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListForProduct(ctx context.Context, shopID, productID uuid.UUID, since time.Time) ([]*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []*Transaction
	err := r.db.SelectContext(ctx2, &out, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE shop_id = $1 AND product_id = $2 AND created_at >= $3
		ORDER BY created_at
	`, shopID, productID, since)
	if err != nil {
		return nil, ledger.Internal("list product transactions", err)
	}
	return out, nil
}
