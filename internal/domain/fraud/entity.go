package fraud

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
)

// Type is the rule family that raised an alert.
type Type string

const (
	TypeVelocity   Type = "velocity"
	TypeQuantity   Type = "quantity"
	TypePattern    Type = "pattern"
	TypePrice      Type = "price"
	TypeInventory  Type = "inventory"
	TypeDuplicate  Type = "duplicate"
	TypeTime       Type = "time"
	TypeBehavioral Type = "behavioral"
	TypeMLDetected Type = "ml_detected"
)

// Category is one of the four score components of a shop.
type Category string

const (
	CategoryVelocity   Category = "velocity"
	CategoryPattern    Category = "pattern"
	CategoryQuantity   Category = "quantity"
	CategoryBehavioral Category = "behavioral"
)

// Category maps the alert type onto the score component it feeds.
func (t Type) Category() Category {
	switch t {
	case TypeVelocity:
		return CategoryVelocity
	case TypeQuantity, TypeInventory:
		return CategoryQuantity
	case TypePrice, TypeDuplicate, TypePattern:
		return CategoryPattern
	default:
		return CategoryBehavioral
	}
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch l := RiskLevel(s); l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return l, nil
	}
	return "", ledger.Invalid("risk_level", "unknown risk level %q", s)
}

type Status string

const (
	StatusFlagged        Status = "flagged"
	StatusUnderReview    Status = "under_review"
	StatusConfirmedFraud Status = "confirmed_fraud"
	StatusFalsePositive  Status = "false_positive"
	StatusResolved       Status = "resolved"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusFlagged, StatusUnderReview, StatusConfirmedFraud, StatusFalsePositive, StatusResolved:
		return st, nil
	}
	return "", ledger.Invalid("status", "unknown alert status %q", s)
}

// Details is the structured evidence attached to an alert.
type Details map[string]interface{}

// Value implements driver.Valuer so sqlx can serialize Details → JSONB.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal alert details: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner so sqlx can deserialize JSONB → Details.
func (d *Details) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	case nil:
		*d = nil
		return nil
	default:
		return fmt.Errorf("unexpected type for alert details: %T", src)
	}
	return json.Unmarshal(b, d)
}

// Alert is raised once per triggered rule. Only the review fields change after
// creation.
type Alert struct {
	ID            uuid.UUID  `db:"alert_id" json:"alert_id"`
	ShopID        uuid.UUID  `db:"shop_id" json:"shop_id"`
	TransactionID *uuid.UUID `db:"transaction_id" json:"transaction_id"`
	Type          Type       `db:"fraud_type" json:"fraud_type"`
	RiskLevel     RiskLevel  `db:"risk_level" json:"risk_level"`
	Status        Status     `db:"status" json:"status"`
	Confidence    float64    `db:"confidence_score" json:"confidence_score"`
	Details       Details    `db:"details" json:"details"`
	Notes         *string    `db:"notes" json:"notes"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by"`
}

// Score is the mutable risk aggregate of one shop. Every component is in [0,1].
type Score struct {
	ID              uuid.UUID `db:"score_id" json:"score_id"`
	ShopID          uuid.UUID `db:"shop_id" json:"shop_id"`
	Overall         float64   `db:"overall_score" json:"overall_score"`
	Velocity        float64   `db:"velocity_score" json:"velocity_score"`
	Pattern         float64   `db:"pattern_score" json:"pattern_score"`
	Quantity        float64   `db:"quantity_score" json:"quantity_score"`
	Behavioral      float64   `db:"behavioral_score" json:"behavioral_score"`
	TotalAlerts     int       `db:"total_alerts" json:"total_alerts"`
	ConfirmedFrauds int       `db:"confirmed_frauds" json:"confirmed_frauds"`
	FalsePositives  int       `db:"false_positives" json:"false_positives"`
	IsSuspended     bool      `db:"is_suspended" json:"is_suspended"`
	LastCalculated  time.Time `db:"last_calculated" json:"last_calculated"`
}

func newScore(shopID uuid.UUID, at time.Time) *Score {
	return &Score{ID: uuid.New(), ShopID: shopID, LastCalculated: at}
}

// Band derives the high/medium/low band of the overall score.
func (s *Score) Band(high, medium float64) RiskLevel {
	switch {
	case s.Overall >= high:
		return RiskHigh
	case s.Overall >= medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ScoreView is a score together with its band.
type ScoreView struct {
	*Score
	RiskLevel RiskLevel `json:"risk_level"`
}

// AlertFilter narrows an alert listing. A nil ShopID lists every shop.
type AlertFilter struct {
	ShopID    *uuid.UUID
	RiskLevel *RiskLevel
	Status    *Status
	From      time.Time
	To        time.Time
	Page      pagination.Params
}

// RecalculateResult summarizes a full rescoring run.
type RecalculateResult struct {
	Updated int `json:"updated_count"`
	Failed  int `json:"failed_count"`
	Total   int `json:"total_shops"`
}
