package fraud

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/pkg/lock"
	"github.com/pasale/pasale-api/internal/pkg/logger"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
)

const (
	recalculateLockKey     = "fraud:recalculate"
	recalculateConcurrency = 8
	reviewAttempts         = 3
)

// Service is the fraud engine: it raises alerts, keeps shop scores and handles
// alert review.
type Service struct {
	repo     Repository
	detector *Detector
	locker   lock.TryLocker
	cache    ScoreCache
	rules    config.Rules
	now      func() time.Time
}

func NewService(repo Repository, detector *Detector, locker lock.TryLocker, rules config.Rules) *Service {
	return &Service{
		repo:     repo,
		detector: detector,
		locker:   locker,
		cache:    noCache{},
		rules:    rules,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithCache serves score reads from c.
func (s *Service) WithCache(c ScoreCache) *Service {
	if c != nil {
		s.cache = c
	}
	return s
}

// RunAllChecks runs every rule against c, stores one flagged alert per
// triggered rule and rescores the shop when anything was raised. Rule
// failures are returned joined, after the alerts of the other rules are
// stored.
func (s *Service) RunAllChecks(ctx context.Context, c Check) ([]*Alert, error) {
	if c.At.IsZero() {
		c.At = s.now()
	}
	findings, failures := s.detector.Evaluate(ctx, c)

	var ruleErr error
	for name, err := range failures {
		ruleErr = errors.Join(ruleErr, fmt.Errorf("%s rule: %w", name, err))
	}
	if len(findings) == 0 {
		return nil, ruleErr
	}

	at := s.now()
	alerts := make([]*Alert, 0, len(findings))
	for _, f := range findings {
		alerts = append(alerts, &Alert{
			ID:            uuid.New(),
			ShopID:        c.ShopID,
			TransactionID: c.TransactionID,
			Type:          f.Type,
			RiskLevel:     f.Level,
			Status:        StatusFlagged,
			Confidence:    f.Confidence,
			Details:       f.Details,
			CreatedAt:     at,
		})
	}
	if err := s.repo.CreateAlerts(ctx, alerts); err != nil {
		return nil, errors.Join(err, ruleErr)
	}

	log := logger.FromContext(ctx)
	for _, a := range alerts {
		log.Warn().
			Str("shop_id", a.ShopID.String()).
			Str("fraud_type", string(a.Type)).
			Str("risk_level", string(a.RiskLevel)).
			Float64("confidence", a.Confidence).
			Msg("fraud alert raised")
	}

	if _, err := s.Recalculate(ctx, c.ShopID); err != nil {
		return alerts, errors.Join(err, ruleErr)
	}
	return alerts, ruleErr
}

// GetOrCreateScore returns the shop score, creating a zero score on first use.
func (s *Service) GetOrCreateScore(ctx context.Context, shopID uuid.UUID) (*Score, error) {
	return s.repo.EnsureScore(ctx, shopID, s.now())
}

// Score returns the shop score with its band.
func (s *Service) Score(ctx context.Context, shopID uuid.UUID) (*ScoreView, error) {
	score, ok := s.cache.Get(ctx, shopID)
	if !ok {
		var err error
		if score, err = s.GetOrCreateScore(ctx, shopID); err != nil {
			return nil, err
		}
		s.cache.Fill(ctx, score)
	}
	return &ScoreView{
		Score:     score,
		RiskLevel: score.Band(s.rules.HighRiskThreshold, s.rules.MediumRiskThreshold),
	}, nil
}

// mutateScore serializes every score write of one shop.
func (s *Service) mutateScore(ctx context.Context, shopID uuid.UUID, fn func(*Score) error) (*Score, error) {
	unlock, err := s.locker.Lock(ctx, "fraud:"+shopID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	score, err := s.GetOrCreateScore(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if err := fn(score); err != nil {
		return nil, err
	}
	if err := s.repo.SaveScore(ctx, score); err != nil {
		return nil, err
	}
	s.cache.Put(ctx, score)
	return score, nil
}

// Recalculate recomputes the shop score from its alerts. Given the same alerts
// and clock it always produces the same components. The shop is suspended once
// the overall score reaches the auto-suspend threshold; suspension is never
// lifted here.
func (s *Service) Recalculate(ctx context.Context, shopID uuid.UUID) (*Score, error) {
	return s.mutateScore(ctx, shopID, func(score *Score) error {
		now := s.now()
		since := now.AddDate(0, 0, -s.rules.ScoreWindowDays)
		alerts, err := s.repo.AlertsSince(ctx, shopID, since)
		if err != nil {
			return err
		}
		total, err := s.repo.CountAlerts(ctx, shopID)
		if err != nil {
			return err
		}

		applyAlerts(score, alerts, since)
		score.TotalAlerts = total
		score.LastCalculated = now

		if !score.IsSuspended && score.Overall >= s.rules.AutoSuspendThreshold {
			score.IsSuspended = true
			logger.FromContext(ctx).Warn().
				Str("shop_id", shopID.String()).
				Float64("overall_score", score.Overall).
				Msg("shop suspended by fraud score")
		}
		return nil
	})
}

// UpdateAlertStatus records a review decision. Moving an alert into
// confirmed_fraud or false_positive bumps the matching counter of the shop.
// The write is conditional on the status that was read, so of two reviewers
// racing on one transition only the winner touches the counters.
func (s *Service) UpdateAlertStatus(ctx context.Context, alertID uuid.UUID, status Status, reviewer string, notes *string) (*Alert, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	if status == StatusFlagged {
		return nil, ErrReflagNotAllowed
	}

	for attempt := 0; attempt < reviewAttempts; attempt++ {
		alert, err := s.repo.GetAlert(ctx, alertID)
		if err != nil {
			return nil, err
		}
		previous := alert.Status

		at := s.now()
		alert.Status = status
		alert.ReviewedAt = &at
		alert.ReviewedBy = &reviewer
		if notes != nil {
			alert.Notes = notes
		}
		applied, err := s.repo.UpdateReview(ctx, alert, previous)
		if err != nil {
			return nil, err
		}
		if applied {
			return alert, s.afterReview(ctx, alert, previous)
		}
	}
	return nil, ErrReviewConflict
}

func (s *Service) afterReview(ctx context.Context, alert *Alert, previous Status) error {
	status := alert.Status
	if previous == status {
		return nil
	}
	counted := status == StatusConfirmedFraud || status == StatusFalsePositive
	rescore := status == StatusFalsePositive || previous == StatusFalsePositive

	if counted {
		if _, err := s.mutateScore(ctx, alert.ShopID, func(score *Score) error {
			if status == StatusConfirmedFraud {
				score.ConfirmedFrauds++
			} else {
				score.FalsePositives++
			}
			return nil
		}); err != nil {
			return err
		}
	}
	if rescore {
		if _, err := s.Recalculate(ctx, alert.ShopID); err != nil {
			return err
		}
	}
	return nil
}

// Alerts lists alerts newest first.
func (s *Service) Alerts(ctx context.Context, filter AlertFilter) (pagination.Page[*Alert], error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.ListAlerts(ctx, filter)
	if err != nil {
		return pagination.Page[*Alert]{}, err
	}
	return pagination.Page[*Alert]{
		Items:    items,
		Total:    total,
		Page:     filter.Page.Page,
		PageSize: filter.Page.PageSize,
	}, nil
}

// HighRiskShops lists scores at or above threshold, highest first.
func (s *Service) HighRiskShops(ctx context.Context, threshold float64) ([]*Score, error) {
	if threshold < 0 || threshold > 1 {
		return nil, ErrInvalidThreshold
	}
	return s.repo.ScoresAtLeast(ctx, threshold)
}

// RecalculateAllScores rescores every known shop. Only one run proceeds at a
// time across instances; a concurrent call fails with lock.ErrNotObtained.
func (s *Service) RecalculateAllScores(ctx context.Context) (*RecalculateResult, error) {
	unlock, err := s.locker.TryLock(ctx, recalculateLockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	shops, err := s.repo.ShopIDs(ctx)
	if err != nil {
		return nil, err
	}

	var updated, failed atomic.Int64
	log := logger.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalculateConcurrency)
	for _, shopID := range shops {
		shopID := shopID
		g.Go(func() error {
			if _, err := s.Recalculate(gctx, shopID); err != nil {
				failed.Add(1)
				log.Error().Err(err).Str("shop_id", shopID.String()).Msg("failed to recalculate fraud score")
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &RecalculateResult{
		Updated: int(updated.Load()),
		Failed:  int(failed.Load()),
		Total:   len(shops),
	}, nil
}
