package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/database"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
)

// Repository stores inventory records and their movement chains. Append and
// Reverse are atomic read-latest-then-append units per (shop, product).
type Repository interface {
	Get(ctx context.Context, shopID, productID uuid.UUID) (*Record, error)
	// Ensure creates the record at zero when absent and reports whether it did.
	Ensure(ctx context.Context, shopID, productID uuid.UUID, reorderLevel int, at time.Time) (*Record, bool, error)
	Append(ctx context.Context, d Draft, floor int) (*Record, *Movement, error)
	// Reverse compensates the newest unreversed movement tagged with
	// transactionID and marks it reversed. It returns nil when there is none.
	Reverse(ctx context.Context, shopID, productID, transactionID uuid.UUID, at time.Time, floor int) (*Movement, error)
	SetReorderLevel(ctx context.Context, shopID, productID uuid.UUID, level int, at time.Time) (*Record, error)
	ListRecords(ctx context.Context, shopID uuid.UUID) ([]*Record, error)
	ListMovements(ctx context.Context, shopID uuid.UUID, filter MovementFilter) ([]*Movement, int, error)
	// Chain returns every movement of one key in chain order.
	Chain(ctx context.Context, shopID, productID uuid.UUID) ([]*Movement, error)
}

// MovementFilter narrows a movement listing. Zero values mean no filter.
type MovementFilter struct {
	ProductID *uuid.UUID
	From      time.Time
	To        time.Time
	Page      pagination.Params
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	recordColumns   = `id, shop_id, product_id, current_quantity, reorder_level, last_updated, created_at`
	movementColumns = `id, shop_id, product_id, movement_type, quantity_change, quantity_after, transaction_id, notes, created_by, reversed_by, created_at`
)

func (r *PostgresRepository) Get(ctx context.Context, shopID, productID uuid.UUID) (*Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM inventory WHERE shop_id = $1 AND product_id = $2`, shopID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInventoryNotFound
	}
	if err != nil {
		return nil, ledger.Internal("get inventory", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Ensure(ctx context.Context, shopID, productID uuid.UUID, reorderLevel int, at time.Time) (*Record, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (id, shop_id, product_id, current_quantity, reorder_level, last_updated, created_at)
		VALUES ($1, $2, $3, 0, $4, $5, $5)
		ON CONFLICT (shop_id, product_id) DO NOTHING
	`, uuid.New(), shopID, productID, reorderLevel, at)
	if err != nil {
		return nil, false, ledger.Internal("ensure inventory", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, ledger.Internal("rows affected", err)
	}

	rec, err := r.Get(ctx, shopID, productID)
	if err != nil {
		return nil, false, err
	}
	return rec, rows == 1, nil
}

func (r *PostgresRepository) lockRecord(ctx context.Context, tx *sqlx.Tx, shopID, productID uuid.UUID, reorderLevel int, at time.Time) (*Record, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory (id, shop_id, product_id, current_quantity, reorder_level, last_updated, created_at)
		VALUES ($1, $2, $3, 0, $4, $5, $5)
		ON CONFLICT (shop_id, product_id) DO NOTHING
	`, uuid.New(), shopID, productID, reorderLevel, at); err != nil {
		return nil, ledger.Internal("ensure inventory", err)
	}

	var rec Record
	err := tx.GetContext(ctx, &rec, `SELECT `+recordColumns+` FROM inventory WHERE shop_id = $1 AND product_id = $2 FOR UPDATE`, shopID, productID)
	if err != nil {
		return nil, ledger.Internal("lock inventory", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) appendLocked(ctx context.Context, tx *sqlx.Tx, rec *Record, d Draft, floor int) (*Movement, error) {
	next, err := ledger.NextTotal(rec.CurrentQuantity, d.Delta, floor)
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrBelowFloor, err)
	}

	m := d.movement(next)
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO inventory_movements (`+movementColumns+`)
		VALUES (:id, :shop_id, :product_id, :movement_type, :quantity_change, :quantity_after, :transaction_id, :notes, :created_by, :reversed_by, :created_at)
	`, m); err != nil {
		return nil, ledger.Internal("insert movement", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory SET current_quantity = $1, last_updated = $2
		WHERE shop_id = $3 AND product_id = $4
	`, next, d.At, d.ShopID, d.ProductID); err != nil {
		return nil, ledger.Internal("update inventory", err)
	}

	rec.CurrentQuantity = next
	rec.LastUpdated = d.At
	return m, nil
}

func (r *PostgresRepository) Append(ctx context.Context, d Draft, floor int) (*Record, *Movement, error) {
	var (
		rec *Record
		m   *Movement
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		rec, err = r.lockRecord(ctx, tx, d.ShopID, d.ProductID, d.ReorderLevel, d.At)
		if err != nil {
			return err
		}
		m, err = r.appendLocked(ctx, tx, rec, d, floor)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, m, nil
}

func (r *PostgresRepository) Reverse(ctx context.Context, shopID, productID, transactionID uuid.UUID, at time.Time, floor int) (*Movement, error) {
	var compensating *Movement
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var original Movement
		err := tx.GetContext(ctx, &original, `
			SELECT `+movementColumns+` FROM inventory_movements
			WHERE shop_id = $1 AND product_id = $2 AND transaction_id = $3 AND reversed_by IS NULL
			ORDER BY seq DESC
			LIMIT 1
			FOR UPDATE
		`, shopID, productID, transactionID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return ledger.Internal("find movement", err)
		}

		rec, err := r.lockRecord(ctx, tx, shopID, productID, 0, at)
		if err != nil {
			return err
		}

		m, err := r.appendLocked(ctx, tx, rec, reversalDraft(&original, at), floor)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE inventory_movements SET reversed_by = $1
			WHERE id = $2 AND reversed_by IS NULL
		`, m.ID, original.ID)
		if err != nil {
			return ledger.Internal("mark movement reversed", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return ledger.ErrAlreadyReversed
		}

		compensating = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return compensating, nil
}

func (r *PostgresRepository) SetReorderLevel(ctx context.Context, shopID, productID uuid.UUID, level int, at time.Time) (*Record, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE inventory SET reorder_level = $1, last_updated = $2
		WHERE shop_id = $3 AND product_id = $4
	`, level, at, shopID, productID)
	if err != nil {
		return nil, ledger.Internal("update reorder level", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, ErrInventoryNotFound
	}
	return r.Get(ctx, shopID, productID)
}

func (r *PostgresRepository) ListRecords(ctx context.Context, shopID uuid.UUID) ([]*Record, error) {
	var out []*Record
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+recordColumns+` FROM inventory
		WHERE shop_id = $1
		ORDER BY current_quantity ASC, product_id
	`, shopID)
	if err != nil {
		return nil, ledger.Internal("list inventory", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListMovements(ctx context.Context, shopID uuid.UUID, filter MovementFilter) ([]*Movement, int, error) {
	where := []string{"shop_id = $1"}
	args := []interface{}{shopID}
	argIdx := 2

	if filter.ProductID != nil {
		where = append(where, fmt.Sprintf("product_id = $%d", argIdx))
		args = append(args, *filter.ProductID)
		argIdx++
	}
	if !filter.From.IsZero() {
		where = append(where, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		where = append(where, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, filter.To)
		argIdx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM inventory_movements WHERE `+clause, args...); err != nil {
		return nil, 0, ledger.Internal("count movements", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT `+movementColumns+` FROM inventory_movements WHERE %s ORDER BY seq DESC LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	var out []*Movement
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, ledger.Internal("list movements", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Chain(ctx context.Context, shopID, productID uuid.UUID) ([]*Movement, error) {
	var out []*Movement
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+movementColumns+` FROM inventory_movements
		WHERE shop_id = $1 AND product_id = $2
		ORDER BY seq
	`, shopID, productID)
	if err != nil {
		return nil, ledger.Internal("load movement chain", err)
	}
	return out, nil
}

func reversalDraft(original *Movement, at time.Time) Draft {
	note := "Reversal of transaction"
	if original.TransactionID != nil {
		note = "Reversal of transaction " + original.TransactionID.String()
	}
	return Draft{
		ShopID:    original.ShopID,
		ProductID: original.ProductID,
		Kind:      KindAdjustment,
		Delta:     -original.QuantityChange,
		Note:      &note,
		At:        at,
	}
}
