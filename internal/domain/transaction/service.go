package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/pkg/logger"
)

// Effects applies and reverses the ledger side effects of a transaction.
type Effects interface {
	CreateEffects(ctx context.Context, t *Transaction) *Report
	DeleteEffects(ctx context.Context, transactionID, shopID uuid.UUID, productID *uuid.UUID) *Report
}

// RecordInput is a validated request to log one business event.
type RecordInput struct {
	ProductID *uuid.UUID
	Quantity  int
	Price     decimal.Decimal
	Type      Type
	DeviceID  *string
	CreatedAt *time.Time
}

type Service struct {
	repo    Repository
	effects Effects
	now     func() time.Time
}

func NewService(repo Repository, effects Effects) *Service {
	return &Service{
		repo:    repo,
		effects: effects,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record persists the transaction and then runs its side effects. The
// transaction survives any side-effect failure; those are reported only.
func (s *Service) Record(ctx context.Context, shopID uuid.UUID, in RecordInput) (*Transaction, *Report, error) {
	if in.Quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	if !in.Price.IsPositive() {
		return nil, nil, ErrInvalidPrice
	}
	if _, err := ParseType(string(in.Type)); err != nil {
		return nil, nil, err
	}

	createdAt := s.now()
	if in.CreatedAt != nil {
		createdAt = in.CreatedAt.UTC()
	}

	t := &Transaction{
		ID:        uuid.New(),
		ShopID:    shopID,
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
		Price:     in.Price,
		Total:     in.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Type:      in.Type,
		DeviceID:  in.DeviceID,
		IsSynced:  true,
		Version:   1,
		CreatedAt: createdAt,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, nil, err
	}

	report := s.effects.CreateEffects(ctx, t)
	logReport(ctx, report)
	return t, report, nil
}

// Delete reverses the side effects first and then removes the record.
func (s *Service) Delete(ctx context.Context, shopID, id uuid.UUID) (*Report, error) {
	t, err := s.repo.GetByID(ctx, shopID, id)
	if err != nil {
		return nil, err
	}

	report := s.effects.DeleteEffects(ctx, t.ID, t.ShopID, t.ProductID)

	if err := s.repo.Delete(ctx, shopID, id); err != nil {
		return report, err
	}
	report.State = StateRemoved
	logReport(ctx, report)
	return report, nil
}

func (s *Service) Get(ctx context.Context, shopID, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetByID(ctx, shopID, id)
}

func logReport(ctx context.Context, r *Report) {
	if r == nil {
		return
	}
	failed := r.Failed()
	if len(failed) == 0 {
		return
	}
	steps := make([]string, 0, len(failed))
	for _, f := range failed {
		steps = append(steps, string(f.Step))
	}
	logger.FromContext(ctx).Warn().
		Str("transaction_id", r.TransactionID.String()).
		Str("path", string(r.Path)).
		Strs("failed_steps", steps).
		Msg("transaction recorded with failed side effects")
}
