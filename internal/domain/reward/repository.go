package reward

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

// View answers the reads a build step needs while the shop is locked.
type View interface {
	SumPositiveSince(ctx context.Context, since time.Time) (int, error)
	HasReasonSince(ctx context.Context, reason Reason, since time.Time) (bool, error)
	UnreversedCredits(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error)
}

// BuildFunc decides which entries to append given the locked balance. It may
// return nothing.
type BuildFunc func(ctx context.Context, view View, balance int) ([]Draft, error)

// Repository stores the per-shop reward chain.
type Repository interface {
	Balance(ctx context.Context, shopID uuid.UUID) (int, error)
	// Append runs build with the shop locked and persists its drafts in one
	// unit; a draft that would take the balance negative rejects the batch.
	Append(ctx context.Context, shopID uuid.UUID, at time.Time, build BuildFunc) ([]*Entry, error)
	ForTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error)
	Between(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*Entry, error)
	Totals(ctx context.Context, shopID uuid.UUID) (earned, redeemed int, err error)
	History(ctx context.Context, shopID uuid.UUID, filter HistoryFilter) ([]*Entry, int, error)
	Chain(ctx context.Context, shopID uuid.UUID) ([]*Entry, error)
}

type HistoryFilter struct {
	From time.Time
	To   time.Time
	Page pagination.Params
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, shop_id, points_change, balance_after, reason, source_txn_id, notes, reversed_by, created_at`

func (r *PostgresRepository) Balance(ctx context.Context, shopID uuid.UUID) (int, error) {
	var balance int
	err := r.db.GetContext(ctx, &balance, `
		SELECT balance_after FROM rewards
		WHERE shop_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, ledger.Internal("get reward balance", err)
	}
	return balance, nil
}

func (r *PostgresRepository) lockAccount(ctx context.Context, tx *sqlx.Tx, shopID uuid.UUID) (int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reward_accounts (shop_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (shop_id) DO NOTHING
	`, shopID); err != nil {
		return 0, ledger.Internal("ensure reward account", err)
	}

	var balance int
	if err := tx.GetContext(ctx, &balance, `SELECT balance FROM reward_accounts WHERE shop_id = $1 FOR UPDATE`, shopID); err != nil {
		return 0, ledger.Internal("lock reward account", err)
	}
	return balance, nil
}

func (r *PostgresRepository) Append(ctx context.Context, shopID uuid.UUID, at time.Time, build BuildFunc) ([]*Entry, error) {
	var appended []*Entry
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		balance, err := r.lockAccount(ctx, tx, shopID)
		if err != nil {
			return err
		}

		drafts, err := build(ctx, &txView{tx: tx, shopID: shopID}, balance)
		if err != nil || len(drafts) == 0 {
			return err
		}

		for _, d := range drafts {
			next, err := ledger.NextTotal(balance, d.Points, 0)
			if err != nil {
				return fmt.Errorf("%w: balance %d, change %d", ErrInsufficientBalance, balance, d.Points)
			}

			e := d.entry(shopID, next, at)
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO rewards (`+entryColumns+`)
				VALUES (:id, :shop_id, :points_change, :balance_after, :reason, :source_txn_id, :notes, :reversed_by, :created_at)
			`, e); err != nil {
				return ledger.Internal("insert reward", err)
			}

			if d.Reverses != nil {
				res, err := tx.ExecContext(ctx, `
					UPDATE rewards SET reversed_by = $1
					WHERE id = $2 AND shop_id = $3 AND reversed_by IS NULL
				`, e.ID, *d.Reverses, shopID)
				if err != nil {
					return ledger.Internal("mark reward reversed", err)
				}
				if rows, _ := res.RowsAffected(); rows == 0 {
					return ledger.ErrAlreadyReversed
				}
			}

			balance = next
			appended = append(appended, e)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE reward_accounts SET balance = $1, updated_at = $2 WHERE shop_id = $3
		`, balance, at, shopID); err != nil {
			return ledger.Internal("update reward account", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

func (r *PostgresRepository) ForTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error) {
	var out []*Entry
	err := r.db.SelectContext(ctx, &out, `SELECT `+entryColumns+` FROM rewards WHERE source_txn_id = $1 ORDER BY seq`, transactionID)
	if err != nil {
		return nil, ledger.Internal("list transaction rewards", err)
	}
	return out, nil
}

func (r *PostgresRepository) Between(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*Entry, error) {
	var out []*Entry
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+entryColumns+` FROM rewards
		WHERE shop_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY seq
	`, shopID, from, to)
	if err != nil {
		return nil, ledger.Internal("list rewards", err)
	}
	return out, nil
}

func (r *PostgresRepository) Totals(ctx context.Context, shopID uuid.UUID) (int, int, error) {
	var totals struct {
		Earned   int `db:"earned"`
		Redeemed int `db:"redeemed"`
	}
	err := r.db.GetContext(ctx, &totals, `
		SELECT
			COALESCE(SUM(points_change) FILTER (WHERE points_change > 0), 0) AS earned,
			COALESCE(-SUM(points_change) FILTER (WHERE points_change < 0), 0) AS redeemed
		FROM rewards WHERE shop_id = $1
	`, shopID)
	if err != nil {
		return 0, 0, ledger.Internal("reward totals", err)
	}
	return totals.Earned, totals.Redeemed, nil
}

func (r *PostgresRepository) History(ctx context.Context, shopID uuid.UUID, filter HistoryFilter) ([]*Entry, int, error) {
	where := []string{"shop_id = $1"}
	args := []interface{}{shopID}
	argIdx := 2

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
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM rewards WHERE `+clause, args...); err != nil {
		return nil, 0, ledger.Internal("count rewards", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT `+entryColumns+` FROM rewards WHERE %s ORDER BY seq DESC LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	var out []*Entry
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, ledger.Internal("reward history", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Chain(ctx context.Context, shopID uuid.UUID) ([]*Entry, error) {
	var out []*Entry
	err := r.db.SelectContext(ctx, &out, `SELECT `+entryColumns+` FROM rewards WHERE shop_id = $1 ORDER BY seq`, shopID)
	if err != nil {
		return nil, ledger.Internal("load reward chain", err)
	}
	return out, nil
}

// txView reads through the transaction holding the account lock.
type txView struct {
	tx     *sqlx.Tx
	shopID uuid.UUID
}

func (v *txView) SumPositiveSince(ctx context.Context, since time.Time) (int, error) {
	var sum int
	err := v.tx.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(points_change), 0) FROM rewards
		WHERE shop_id = $1 AND created_at >= $2 AND points_change > 0
	`, v.shopID, since)
	return sum, err
}

func (v *txView) HasReasonSince(ctx context.Context, reason Reason, since time.Time) (bool, error) {
	var exists bool
	err := v.tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM rewards
			WHERE shop_id = $1 AND reason = $2 AND created_at >= $3
		)
	`, v.shopID, reason, since)
	return exists, err
}

func (v *txView) UnreversedCredits(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error) {
	var out []*Entry
	err := v.tx.SelectContext(ctx, &out, `
		SELECT `+entryColumns+` FROM rewards
		WHERE shop_id = $1 AND source_txn_id = $2 AND points_change > 0 AND reversed_by IS NULL
		ORDER BY seq
	`, v.shopID, transactionID)
	return out, err
}
