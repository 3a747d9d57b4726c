package fraud

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
)

// Repository stores alerts and shop scores. Alerts are append-only apart from
// their review fields.
type Repository interface {
	CreateAlerts(ctx context.Context, alerts []*Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error)
	// UpdateReview writes the review fields only while the stored status is
	// still from. It reports false when another review got there first.
	UpdateReview(ctx context.Context, a *Alert, from Status) (bool, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, int, error)
	AlertsSince(ctx context.Context, shopID uuid.UUID, since time.Time) ([]*Alert, error)
	CountAlerts(ctx context.Context, shopID uuid.UUID) (int, error)

	GetScore(ctx context.Context, shopID uuid.UUID) (*Score, error)
	// EnsureScore creates a zero score when the shop has none.
	EnsureScore(ctx context.Context, shopID uuid.UUID, at time.Time) (*Score, error)
	SaveScore(ctx context.Context, s *Score) error
	ScoresAtLeast(ctx context.Context, threshold float64) ([]*Score, error)
	// ShopIDs lists every shop that has a score or an alert.
	ShopIDs(ctx context.Context) ([]uuid.UUID, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	alertColumns = `alert_id, shop_id, transaction_id, fraud_type, risk_level, status, confidence_score, details, notes, created_at, reviewed_at, reviewed_by`
	scoreColumns = `score_id, shop_id, overall_score, velocity_score, pattern_score, quantity_score, behavioral_score, total_alerts, confirmed_frauds, false_positives, is_suspended, last_calculated`
)

func (r *PostgresRepository) CreateAlerts(ctx context.Context, alerts []*Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, a := range alerts {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO fraud_alerts (`+alertColumns+`)
				VALUES (:alert_id, :shop_id, :transaction_id, :fraud_type, :risk_level, :status, :confidence_score, :details, :notes, :created_at, :reviewed_at, :reviewed_by)
			`, a); err != nil {
				return ledger.Internal("insert fraud alert", err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	var a Alert
	err := r.db.GetContext(ctx, &a, `SELECT `+alertColumns+` FROM fraud_alerts WHERE alert_id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, ledger.Internal("get fraud alert", err)
	}
	return &a, nil
}

func (r *PostgresRepository) UpdateReview(ctx context.Context, a *Alert, from Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fraud_alerts SET status = $2, notes = $3, reviewed_at = $4, reviewed_by = $5
		WHERE alert_id = $1 AND status = $6
	`, a.ID, a.Status, a.Notes, a.ReviewedAt, a.ReviewedBy, from)
	if err != nil {
		return false, ledger.Internal("update fraud alert", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM fraud_alerts WHERE alert_id = $1)`, a.ID); err != nil {
		return false, ledger.Internal("check fraud alert", err)
	}
	if !exists {
		return false, ErrAlertNotFound
	}
	return false, nil
}

func (r *PostgresRepository) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argIdx := 1

	if filter.ShopID != nil {
		where = append(where, fmt.Sprintf("shop_id = $%d", argIdx))
		args = append(args, *filter.ShopID)
		argIdx++
	}
	if filter.RiskLevel != nil {
		where = append(where, fmt.Sprintf("risk_level = $%d", argIdx))
		args = append(args, *filter.RiskLevel)
		argIdx++
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *filter.Status)
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
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM fraud_alerts WHERE `+clause, args...); err != nil {
		return nil, 0, ledger.Internal("count fraud alerts", err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT `+alertColumns+` FROM fraud_alerts WHERE %s ORDER BY created_at DESC, alert_id LIMIT $%d OFFSET $%d`,
		clause, argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	var out []*Alert
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, ledger.Internal("list fraud alerts", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) AlertsSince(ctx context.Context, shopID uuid.UUID, since time.Time) ([]*Alert, error) {
	var out []*Alert
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+alertColumns+` FROM fraud_alerts
		WHERE shop_id = $1 AND created_at >= $2
		ORDER BY created_at
	`, shopID, since)
	if err != nil {
		return nil, ledger.Internal("load fraud alerts", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountAlerts(ctx context.Context, shopID uuid.UUID) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM fraud_alerts WHERE shop_id = $1`, shopID); err != nil {
		return 0, ledger.Internal("count fraud alerts", err)
	}
	return n, nil
}

func (r *PostgresRepository) GetScore(ctx context.Context, shopID uuid.UUID) (*Score, error) {
	var s Score
	err := r.db.GetContext(ctx, &s, `SELECT `+scoreColumns+` FROM shop_fraud_scores WHERE shop_id = $1`, shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScoreNotFound
	}
	if err != nil {
		return nil, ledger.Internal("get fraud score", err)
	}
	return &s, nil
}

func (r *PostgresRepository) EnsureScore(ctx context.Context, shopID uuid.UUID, at time.Time) (*Score, error) {
	if _, err := r.db.NamedExecContext(ctx, `
		INSERT INTO shop_fraud_scores (`+scoreColumns+`)
		VALUES (:score_id, :shop_id, :overall_score, :velocity_score, :pattern_score, :quantity_score, :behavioral_score, :total_alerts, :confirmed_frauds, :false_positives, :is_suspended, :last_calculated)
		ON CONFLICT (shop_id) DO NOTHING
	`, newScore(shopID, at)); err != nil {
		return nil, ledger.Internal("ensure fraud score", err)
	}
	return r.GetScore(ctx, shopID)
}

func (r *PostgresRepository) SaveScore(ctx context.Context, s *Score) error {
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE shop_fraud_scores SET
			overall_score = :overall_score, velocity_score = :velocity_score, pattern_score = :pattern_score,
			quantity_score = :quantity_score, behavioral_score = :behavioral_score, total_alerts = :total_alerts,
			confirmed_frauds = :confirmed_frauds, false_positives = :false_positives,
			is_suspended = :is_suspended, last_calculated = :last_calculated
		WHERE shop_id = :shop_id
	`, s)
	if err != nil {
		return ledger.Internal("save fraud score", err)
	}
	return nil
}

func (r *PostgresRepository) ScoresAtLeast(ctx context.Context, threshold float64) ([]*Score, error) {
	var out []*Score
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+scoreColumns+` FROM shop_fraud_scores
		WHERE overall_score >= $1
		ORDER BY overall_score DESC
	`, threshold)
	if err != nil {
		return nil, ledger.Internal("list high risk shops", err)
	}
	return out, nil
}

func (r *PostgresRepository) ShopIDs(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	err := r.db.SelectContext(ctx, &out, `
		SELECT shop_id FROM shop_fraud_scores
		UNION
		SELECT DISTINCT shop_id FROM fraud_alerts
	`)
	if err != nil {
		return nil, ledger.Internal("list scored shops", err)
	}
	return out, nil
}
