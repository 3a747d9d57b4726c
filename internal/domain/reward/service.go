package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/ledger"
	"github.com/pasale/pasale-api/internal/pkg/logger"
)

var milestones = []int{1000, 2000, 5000, 10000}

// TransactionCounter counts a shop's transactions in [from, to).
type TransactionCounter interface {
	CountBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) (int, error)
}

// Service is the reward ledger.
type Service struct {
	repo         Repository
	transactions TransactionCounter
	payout       Payout
	rules        config.Rules
	now          func() time.Time
}

func NewService(repo Repository, transactions TransactionCounter, payout Payout, rules config.Rules) *Service {
	if payout == nil {
		payout = LogPayout{}
	}
	return &Service{
		repo:         repo,
		transactions: transactions,
		payout:       payout,
		rules:        rules,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) CurrentBalance(ctx context.Context, shopID uuid.UUID) (int, error) {
	return s.repo.Balance(ctx, shopID)
}

// Add appends one entry, rejecting it if the balance would go negative.
func (s *Service) Add(ctx context.Context, shopID uuid.UUID, points int, reason Reason, transactionID *uuid.UUID, note *string) (*Entry, error) {
	if points == 0 {
		return nil, ErrZeroPoints
	}
	if _, err := ParseReason(string(reason)); err != nil {
		return nil, err
	}
	return s.appendOne(ctx, shopID, func(context.Context, View, int) (*Draft, error) {
		return &Draft{Points: points, Reason: reason, TransactionID: transactionID, Note: note}, nil
	})
}

func (s *Service) appendOne(ctx context.Context, shopID uuid.UUID, build func(context.Context, View, int) (*Draft, error)) (*Entry, error) {
	entries, err := s.repo.Append(ctx, shopID, s.now(), func(ctx context.Context, view View, balance int) ([]Draft, error) {
		d, err := build(ctx, view, balance)
		if err != nil || d == nil {
			return nil, err
		}
		return []Draft{*d}, nil
	})
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// PointsFor returns the configured award and its reason for a transaction
// type. Purchases and returns share the purchase reason.
func (s *Service) PointsFor(t transaction.Type) (int, Reason) {
	switch t {
	case transaction.TypeSale:
		return s.rules.PointsPerSale, ReasonTransactionSale
	case transaction.TypePurchase:
		return s.rules.PointsPerPurchase, ReasonTransactionPurchase
	case transaction.TypeReturn:
		return s.rules.PointsPerReturn, ReasonTransactionPurchase
	}
	return 0, ReasonTransactionPurchase
}

// AwardForTransaction awards the base points, then evaluates the daily and
// streak bonuses. It returns nil without error when the daily cap is already
// reached or the type earns nothing. A type that earns nothing still counts
// towards the bonuses.
func (s *Service) AwardForTransaction(ctx context.Context, shopID, transactionID uuid.UUID, t transaction.Type) (*Entry, error) {
	var entry *Entry
	if points, reason := s.PointsFor(t); points > 0 {
		today := startOfDay(s.now())
		note := fmt.Sprintf("Points for %s transaction", t)
		txnID := transactionID

		var err error
		entry, err = s.appendOne(ctx, shopID, func(ctx context.Context, view View, _ int) (*Draft, error) {
			earned, err := view.SumPositiveSince(ctx, today)
			if err != nil {
				return nil, err
			}
			if earned >= s.rules.MaxDailyPoints {
				return nil, nil
			}
			return &Draft{Points: points, Reason: reason, TransactionID: &txnID, Note: &note}, nil
		})
		if err != nil || entry == nil {
			return nil, err
		}
	}

	log := logger.FromContext(ctx)
	if _, err := s.EvaluateDailyBonus(ctx, shopID); err != nil {
		log.Warn().Err(err).Str("shop_id", shopID.String()).Msg("daily bonus evaluation failed")
	}
	if _, err := s.EvaluateStreakBonus(ctx, shopID); err != nil {
		log.Warn().Err(err).Str("shop_id", shopID.String()).Msg("streak bonus evaluation failed")
	}
	return entry, nil
}

// EvaluateDailyBonus awards the daily bonus at most once per calendar day.
func (s *Service) EvaluateDailyBonus(ctx context.Context, shopID uuid.UUID) (*Entry, error) {
	today := startOfDay(s.now())

	return s.appendOne(ctx, shopID, func(ctx context.Context, view View, _ int) (*Draft, error) {
		awarded, err := view.HasReasonSince(ctx, ReasonDailyBonus, today)
		if err != nil || awarded {
			return nil, err
		}
		count, err := s.transactions.CountBetween(ctx, shopID, today, today.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		if count < s.rules.DailyBonusThreshold {
			return nil, nil
		}
		note := fmt.Sprintf("Daily bonus for logging %d transactions", count)
		return &Draft{Points: s.rules.DailyBonusPoints, Reason: ReasonDailyBonus, Note: &note}, nil
	})
}

// EvaluateStreakBonus awards the streak bonus when each of the last
// StreakDays calendar days (today included) has enough transactions, and no
// streak bonus was awarded inside that window.
func (s *Service) EvaluateStreakBonus(ctx context.Context, shopID uuid.UUID) (*Entry, error) {
	now := s.now()
	today := startOfDay(now)

	return s.appendOne(ctx, shopID, func(ctx context.Context, view View, _ int) (*Draft, error) {
		recent, err := view.HasReasonSince(ctx, ReasonStreakBonus, now.AddDate(0, 0, -s.rules.StreakDays))
		if err != nil || recent {
			return nil, err
		}
		for i := 0; i < s.rules.StreakDays; i++ {
			day := today.AddDate(0, 0, -i)
			count, err := s.transactions.CountBetween(ctx, shopID, day, day.AddDate(0, 0, 1))
			if err != nil {
				return nil, err
			}
			if count < s.rules.StreakMinTransactions {
				return nil, nil
			}
		}
		note := fmt.Sprintf("%d-day streak bonus", s.rules.StreakDays)
		return &Draft{Points: s.rules.StreakBonusPoints, Reason: ReasonStreakBonus, Note: &note}, nil
	})
}

// ReverseForTransaction appends a fraud_reversal debit for every unreversed
// credit tagged with transactionID. Debits tied to the transaction are left
// alone. It returns false when nothing was reversed.
func (s *Service) ReverseForTransaction(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	tagged, err := s.repo.ForTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}

	shops := make([]uuid.UUID, 0, 1)
	seen := make(map[uuid.UUID]bool)
	for _, e := range tagged {
		if e.PointsChange > 0 && e.ReversedBy == nil && !seen[e.ShopID] {
			seen[e.ShopID] = true
			shops = append(shops, e.ShopID)
		}
	}

	reversed := false
	for _, shopID := range shops {
		entries, err := s.repo.Append(ctx, shopID, s.now(), func(ctx context.Context, view View, _ int) ([]Draft, error) {
			credits, err := view.UnreversedCredits(ctx, transactionID)
			if err != nil {
				return nil, err
			}
			note := fmt.Sprintf("Reversal for deleted transaction %s", transactionID)
			drafts := make([]Draft, 0, len(credits))
			for _, c := range credits {
				target := c.ID
				txnID := transactionID
				drafts = append(drafts, Draft{
					Points:        -c.PointsChange,
					Reason:        ReasonFraudReversal,
					TransactionID: &txnID,
					Note:          &note,
					Reverses:      &target,
				})
			}
			return drafts, nil
		})
		if errors.Is(err, ledger.ErrAlreadyReversed) {
			continue
		}
		if err != nil {
			return reversed, err
		}
		if len(entries) > 0 {
			reversed = true
		}
	}
	return reversed, nil
}

// Redeem debits points and hands the payout to the Payout port.
func (s *Service) Redeem(ctx context.Context, shopID uuid.UUID, points int, method, account string) (*Redemption, error) {
	if points <= 0 {
		return nil, ErrNonPositivePoints
	}
	if method == "" {
		return nil, ledger.Invalid("method", "is required")
	}

	amount := s.currencyValue(points)
	entry, err := s.appendOne(ctx, shopID, func(_ context.Context, _ View, balance int) (*Draft, error) {
		if balance < points {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, points)
		}
		if points < s.rules.MinRedemptionPoints {
			return nil, fmt.Errorf("%w (minimum %d)", ErrBelowMinimum, s.rules.MinRedemptionPoints)
		}
		note := fmt.Sprintf("Redeemed %d points (%s) via %s to %s", points, amount.StringFixed(2), method, account)
		return &Draft{Points: -points, Reason: ReasonRedemption, Note: &note}, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.payout.Send(ctx, PayoutRequest{
		ShopID:  shopID,
		EntryID: entry.ID,
		Points:  points,
		Amount:  amount,
		Method:  method,
		Account: account,
	}); err != nil {
		logger.FromContext(ctx).Error().Err(err).Str("reward_id", entry.ID.String()).Msg("payout hand-off failed")
	}

	return &Redemption{Entry: entry, Amount: amount, Method: method}, nil
}

func (s *Service) currencyValue(points int) decimal.Decimal {
	return decimal.NewFromInt(int64(points)).Mul(s.rules.PointsToCurrencyRatio).Round(2)
}

// DailyStats splits the day's positive points into transaction and bonus
// points.
func (s *Service) DailyStats(ctx context.Context, shopID uuid.UUID, date time.Time) (*DailyStats, error) {
	day := startOfDay(date)
	next := day.AddDate(0, 0, 1)

	count, err := s.transactions.CountBetween(ctx, shopID, day, next)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.Between(ctx, shopID, day, next)
	if err != nil {
		return nil, err
	}

	stats := &DailyStats{Date: day.Format("2006-01-02"), TransactionsLogged: count}
	for _, e := range entries {
		if e.PointsChange <= 0 {
			continue
		}
		switch {
		case e.Reason == ReasonTransactionSale || e.Reason == ReasonTransactionPurchase:
			stats.TransactionPoints += e.PointsChange
		case e.Reason.IsBonus():
			stats.BonusPoints += e.PointsChange
		}
	}
	stats.PointsEarned = stats.TransactionPoints + stats.BonusPoints
	stats.ReachedDailyCap = stats.PointsEarned >= s.rules.MaxDailyPoints
	return stats, nil
}

func (s *Service) Summary(ctx context.Context, shopID uuid.UUID) (*Summary, error) {
	balance, err := s.repo.Balance(ctx, shopID)
	if err != nil {
		return nil, err
	}
	earned, redeemed, err := s.repo.Totals(ctx, shopID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ShopID:         shopID,
		CurrentBalance: balance,
		TotalEarned:    earned,
		TotalRedeemed:  redeemed,
		BalanceValue:   s.currencyValue(balance),
		CanRedeem:      balance >= s.rules.MinRedemptionPoints,
	}
	for _, m := range milestones {
		if balance < m {
			summary.NextMilestone = &Milestone{
				Milestone:    m,
				PointsNeeded: m - balance,
				RewardValue:  s.currencyValue(m),
			}
			break
		}
	}
	return summary, nil
}

func (s *Service) History(ctx context.Context, shopID uuid.UUID, filter HistoryFilter) (*History, error) {
	filter.Page = filter.Page.Normalize()
	entries, total, err := s.repo.History(ctx, shopID, filter)
	if err != nil {
		return nil, err
	}
	summary, err := s.Summary(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return &History{
		Entries:        entries,
		Total:          total,
		Page:           filter.Page.Page,
		PageSize:       filter.Page.PageSize,
		CurrentBalance: summary.CurrentBalance,
		TotalEarned:    summary.TotalEarned,
		TotalRedeemed:  summary.TotalRedeemed,
	}, nil
}

// VerifyChain checks the stored chain of a shop.
func (s *Service) VerifyChain(ctx context.Context, shopID uuid.UUID) error {
	chain, err := s.repo.Chain(ctx, shopID)
	if err != nil {
		return err
	}
	if err := ledger.VerifyChain(chain); err != nil {
		return err
	}
	for _, e := range chain {
		if e.BalanceAfter < 0 {
			return fmt.Errorf("%w: negative balance at %s", ledger.ErrChainBroken, e.ID)
		}
	}
	return nil
}

