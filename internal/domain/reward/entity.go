package reward

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/ledger"
)

// Reason is the closed set of causes for a point change.
type Reason string

const (
	ReasonTransactionSale     Reason = "transaction_sale"
	ReasonTransactionPurchase Reason = "transaction_purchase"
	ReasonDailyBonus          Reason = "daily_bonus"
	ReasonStreakBonus         Reason = "streak_bonus"
	ReasonManualAdjustment    Reason = "manual_adjustment"
	ReasonFraudReversal       Reason = "fraud_reversal"
	ReasonRedemption          Reason = "redemption"
)

func ParseReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonTransactionSale, ReasonTransactionPurchase, ReasonDailyBonus, ReasonStreakBonus,
		ReasonManualAdjustment, ReasonFraudReversal, ReasonRedemption:
		return r, nil
	}
	return "", ledger.Invalid("reason", "unknown reward reason %q", s)
}

// IsBonus reports whether the reason is a volume bonus rather than a
// per-transaction award.
func (r Reason) IsBonus() bool {
	return r == ReasonDailyBonus || r == ReasonStreakBonus
}

// Entry is one immutable point change. BalanceAfter chains per shop and is
// never negative.
type Entry struct {
	ID            uuid.UUID  `db:"id" json:"reward_id"`
	ShopID        uuid.UUID  `db:"shop_id" json:"shop_id"`
	PointsChange  int        `db:"points_change" json:"points_change"`
	BalanceAfter  int        `db:"balance_after" json:"balance_after"`
	Reason        Reason     `db:"reason" json:"reason"`
	TransactionID *uuid.UUID `db:"source_txn_id" json:"source_txn_id,omitempty"`
	Note          *string    `db:"notes" json:"notes,omitempty"`
	ReversedBy    *uuid.UUID `db:"reversed_by" json:"reversed_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

func (e Entry) LedgerKey() ledger.Key { return ledger.Key{Owner: e.ShopID.String()} }
func (e Entry) LedgerTime() time.Time { return e.CreatedAt }
func (e Entry) Delta() int            { return e.PointsChange }
func (e Entry) RunningTotal() int     { return e.BalanceAfter }

// Draft is an entry before it is placed on the chain. Reverses names the
// entry this one compensates.
type Draft struct {
	Points        int
	Reason        Reason
	TransactionID *uuid.UUID
	Note          *string
	Reverses      *uuid.UUID
}

func (d Draft) entry(shopID uuid.UUID, balanceAfter int, at time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		ShopID:        shopID,
		PointsChange:  d.Points,
		BalanceAfter:  balanceAfter,
		Reason:        d.Reason,
		TransactionID: d.TransactionID,
		Note:          d.Note,
		CreatedAt:     at,
	}
}

type Milestone struct {
	Milestone    int             `json:"milestone"`
	PointsNeeded int             `json:"points_needed"`
	RewardValue  decimal.Decimal `json:"reward_value"`
}

type Summary struct {
	ShopID         uuid.UUID       `json:"shop_id"`
	CurrentBalance int             `json:"current_balance"`
	TotalEarned    int             `json:"total_earned"`
	TotalRedeemed  int             `json:"total_redeemed"`
	BalanceValue   decimal.Decimal `json:"balance_value"`
	CanRedeem      bool            `json:"can_redeem"`
	NextMilestone  *Milestone      `json:"next_milestone"`
}

type DailyStats struct {
	Date               string `json:"date"`
	TransactionsLogged int    `json:"transactions_logged"`
	TransactionPoints  int    `json:"transaction_points"`
	BonusPoints        int    `json:"bonuses_earned"`
	PointsEarned       int    `json:"points_earned"`
	ReachedDailyCap    bool   `json:"reached_daily_cap"`
}

type History struct {
	Entries        []*Entry `json:"rewards"`
	Total          int      `json:"total"`
	Page           int      `json:"page"`
	PageSize       int      `json:"page_size"`
	CurrentBalance int      `json:"current_balance"`
	TotalEarned    int      `json:"total_earned"`
	TotalRedeemed  int      `json:"total_redeemed"`
}

// Redemption is the outcome of a successful redeem.
type Redemption struct {
	Entry  *Entry          `json:"entry"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}
