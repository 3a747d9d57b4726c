package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasale/pasale-api/internal/ledger"
)

type fakeEffects struct {
	created []*Transaction
	deleted []uuid.UUID
	fail    bool
}

func (f *fakeEffects) CreateEffects(_ context.Context, t *Transaction) *Report {
	f.created = append(f.created, t)
	status := StepOK
	if f.fail {
		status = StepFailed
	}
	return &Report{TransactionID: t.ID, Path: PathCreate, State: StateRewardApplied, Steps: []StepResult{{Step: StepInventoryApply, Status: status}}}
}

func (f *fakeEffects) DeleteEffects(_ context.Context, id, _ uuid.UUID, _ *uuid.UUID) *Report {
	f.deleted = append(f.deleted, id)
	return &Report{TransactionID: id, Path: PathDelete, State: StateInventoryReversed}
}

func newTestService() (*Service, *MemoryRepository, *fakeEffects) {
	repo := NewMemoryRepository()
	effects := &fakeEffects{}
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, effects).WithClock(func() time.Time { return fixed })
	return svc, repo, effects
}

func TestRecordComputesTotalAndRunsEffects(t *testing.T) {
	svc, repo, effects := newTestService()
	ctx := context.Background()
	shopID := uuid.New()
	productID := uuid.New()

	txn, report, err := svc.Record(ctx, shopID, RecordInput{
		ProductID: &productID,
		Quantity:  5,
		Price:     decimal.NewFromInt(10),
		Type:      TypeSale,
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(50).Equal(txn.Total))
	assert.Equal(t, 1, txn.Version)
	require.Len(t, effects.created, 1)
	assert.Equal(t, txn.ID, report.TransactionID)

	stored, err := repo.GetByID(ctx, shopID, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeSale, stored.Type)
}

func TestRecordSurvivesFailedEffects(t *testing.T) {
	svc, repo, effects := newTestService()
	effects.fail = true
	ctx := context.Background()
	shopID := uuid.New()

	txn, report, err := svc.Record(ctx, shopID, RecordInput{Quantity: 1, Price: decimal.NewFromInt(3), Type: TypePurchase})
	require.NoError(t, err)
	assert.Len(t, report.Failed(), 1)

	_, err = repo.GetByID(ctx, shopID, txn.ID)
	assert.NoError(t, err)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	svc, _, effects := newTestService()
	ctx := context.Background()

	cases := []RecordInput{
		{Quantity: 0, Price: decimal.NewFromInt(1), Type: TypeSale},
		{Quantity: 1, Price: decimal.Zero, Type: TypeSale},
		{Quantity: 1, Price: decimal.NewFromInt(1), Type: Type("gift")},
	}
	for _, in := range cases {
		_, _, err := svc.Record(ctx, uuid.New(), in)
		assert.True(t, ledger.IsValidation(err), "input %+v: %v", in, err)
	}
	assert.Empty(t, effects.created)
}

func TestDeleteReversesThenRemoves(t *testing.T) {
	svc, repo, effects := newTestService()
	ctx := context.Background()
	shopID := uuid.New()

	txn, _, err := svc.Record(ctx, shopID, RecordInput{Quantity: 2, Price: decimal.NewFromInt(4), Type: TypeReturn})
	require.NoError(t, err)

	report, err := svc.Delete(ctx, shopID, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRemoved, report.State)
	assert.Equal(t, []uuid.UUID{txn.ID}, effects.deleted)

	_, err = repo.GetByID(ctx, shopID, txn.ID)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestDeleteIsShopScoped(t *testing.T) {
	svc, _, effects := newTestService()
	ctx := context.Background()

	txn, _, err := svc.Record(ctx, uuid.New(), RecordInput{Quantity: 2, Price: decimal.NewFromInt(4), Type: TypeSale})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, uuid.New(), txn.ID)
	assert.True(t, errors.Is(err, ErrTransactionNotFound))
	assert.Empty(t, effects.deleted)
}

func TestMemoryRepositoryHistoryWindows(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	shopID := uuid.New()
	productID := uuid.New()
	day := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{day.Add(-time.Hour), day, day.Add(23 * time.Hour)} {
		require.NoError(t, repo.Create(ctx, &Transaction{
			ID: uuid.New(), ShopID: shopID, ProductID: &productID, Quantity: i + 1,
			Price: decimal.NewFromInt(1), Type: TypeSale, CreatedAt: at,
		}))
	}

	n, err := repo.CountBetween(ctx, shopID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hist, err := repo.ListForProduct(ctx, shopID, productID, day)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[0].Quantity)
}
