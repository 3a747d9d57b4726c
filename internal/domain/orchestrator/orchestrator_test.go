package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/fraud"
	"github.com/pasale/pasale-api/internal/domain/inventory"
	"github.com/pasale/pasale-api/internal/domain/reward"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/pkg/lock"
)

type fakeFraud struct {
	calls int
	err   error
}

func (f *fakeFraud) RunAllChecks(_ context.Context, c fraud.Check) ([]*fraud.Alert, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []*fraud.Alert{{ShopID: c.ShopID, Type: fraud.TypeQuantity}}, nil
}

type fakeInventory struct {
	applied  int
	reversed bool
	panics   bool
}

func (f *fakeInventory) ApplyTransaction(_ context.Context, t *transaction.Transaction) (*inventory.Record, error) {
	if f.panics {
		panic("stock store gone")
	}
	f.applied++
	return &inventory.Record{CurrentQuantity: 15}, nil
}

func (f *fakeInventory) ReverseForTransaction(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (bool, error) {
	return f.reversed, nil
}

type fakeReward struct {
	awarded int
	err     error
}

func (f *fakeReward) AwardForTransaction(_ context.Context, shopID, _ uuid.UUID, _ transaction.Type) (*reward.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.awarded++
	return &reward.Entry{ShopID: shopID, PointsChange: 2, BalanceAfter: 2}, nil
}

func (f *fakeReward) ReverseForTransaction(context.Context, uuid.UUID) (bool, error) {
	return false, f.err
}

func saleWithProduct() *transaction.Transaction {
	productID := uuid.New()
	return &transaction.Transaction{
		ID: uuid.New(), ShopID: uuid.New(), ProductID: &productID,
		Quantity: 5, Price: decimal.NewFromInt(10), Type: transaction.TypeSale,
		CreatedAt: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateEffectsRunsEveryStepOnce(t *testing.T) {
	fr, inv, rw := &fakeFraud{}, &fakeInventory{}, &fakeReward{}
	o := New(fr, inv, rw)

	report := o.CreateEffects(context.Background(), saleWithProduct())

	assert.Equal(t, transaction.StateRewardApplied, report.State)
	require.Len(t, report.Steps, 3)
	assert.Equal(t, transaction.StepFraudCheck, report.Steps[0].Step)
	assert.Equal(t, transaction.StepInventoryApply, report.Steps[1].Step)
	assert.Equal(t, transaction.StepRewardAward, report.Steps[2].Step)
	assert.Empty(t, report.Failed())
	assert.Equal(t, 1, fr.calls)
	assert.Equal(t, 1, inv.applied)
	assert.Equal(t, 1, rw.awarded)

	inventoryStep, _ := report.Result(transaction.StepInventoryApply)
	assert.Equal(t, 15, inventoryStep.Detail["quantity_after"])
}

func TestCreateEffectsIsolatesFailures(t *testing.T) {
	fr := &fakeFraud{err: errors.New("scoring store down")}
	inv := &fakeInventory{panics: true}
	rw := &fakeReward{}
	o := New(fr, inv, rw)

	report := o.CreateEffects(context.Background(), saleWithProduct())

	assert.Equal(t, transaction.StateRewardApplied, report.State)
	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, transaction.StepFraudCheck, failed[0].Step)
	assert.Contains(t, failed[0].Error, "scoring store down")
	assert.Equal(t, transaction.StepInventoryApply, failed[1].Step)
	assert.Contains(t, failed[1].Error, "panic")

	awarded, ok := report.Result(transaction.StepRewardAward)
	require.True(t, ok)
	assert.Equal(t, transaction.StepOK, awarded.Status)
	assert.Equal(t, 1, rw.awarded)
}

func TestCreateEffectsSkipsInventoryWithoutProduct(t *testing.T) {
	inv := &fakeInventory{}
	o := New(&fakeFraud{}, inv, &fakeReward{})

	txn := saleWithProduct()
	txn.ProductID = nil
	report := o.CreateEffects(context.Background(), txn)

	step, ok := report.Result(transaction.StepInventoryApply)
	require.True(t, ok)
	assert.Equal(t, transaction.StepSkipped, step.Status)
	assert.Zero(t, inv.applied)
}

func TestDeleteEffectsReportsNoops(t *testing.T) {
	o := New(&fakeFraud{}, &fakeInventory{}, &fakeReward{})
	productID := uuid.New()

	report := o.DeleteEffects(context.Background(), uuid.New(), uuid.New(), &productID)

	assert.Equal(t, transaction.PathDelete, report.Path)
	assert.Equal(t, transaction.StateInventoryReversed, report.State)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, transaction.StepRewardReverse, report.Steps[0].Step)
	assert.Equal(t, transaction.StepNoop, report.Steps[0].Status)
	assert.Equal(t, transaction.StepInventoryReverse, report.Steps[1].Step)
	assert.Equal(t, transaction.StepNoop, report.Steps[1].Status)
}

// ledgers wires the real services over in-memory stores.
type ledgers struct {
	txns      *transaction.Service
	inventory *inventory.Service
	reward    *reward.Service
	fraud     *fraud.Service
	catalog   *inventory.MemoryCatalog
	now       time.Time
}

func newLedgers(t *testing.T) *ledgers {
	t.Helper()
	rules := config.DefaultRules()
	locker := lock.NewKeyedMutex()
	l := &ledgers{
		catalog: inventory.NewMemoryCatalog(),
		now:     time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return l.now }

	txnRepo := transaction.NewMemoryRepository()
	l.inventory = inventory.NewService(inventory.NewMemoryRepository(locker), l.catalog, rules).WithClock(clock)
	l.reward = reward.NewService(reward.NewMemoryRepository(locker), txnRepo, nil, rules).WithClock(clock)
	l.fraud = fraud.NewService(fraud.NewMemoryRepository(), fraud.NewDetector(rules, txnRepo, l.inventory), locker, rules).WithClock(clock)
	l.txns = transaction.NewService(txnRepo, New(l.fraud, l.inventory, l.reward)).WithClock(clock)
	return l
}

func TestCreateAndDeleteKeepLedgersConsistent(t *testing.T) {
	l := newLedgers(t)
	ctx := context.Background()
	shopID := uuid.New()
	productID := uuid.New()
	l.catalog.Put(&inventory.Product{ID: productID, ShopID: shopID, Name: "Rice 5kg", Price: decimal.NewFromInt(10), IsActive: true})

	_, err := l.inventory.OpenWithStock(ctx, shopID, productID, 20, nil)
	require.NoError(t, err)

	txn, report, err := l.txns.Record(ctx, shopID, transaction.RecordInput{
		ProductID: &productID,
		Quantity:  5,
		Price:     decimal.NewFromInt(10),
		Type:      transaction.TypeSale,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Failed())

	qty, err := l.inventory.CurrentQuantity(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 15, qty)
	balance, err := l.reward.CurrentBalance(ctx, shopID)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)

	report, err = l.txns.Delete(ctx, shopID, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateRemoved, report.State)
	for _, step := range report.Steps {
		assert.Equal(t, transaction.StepOK, step.Status, string(step.Step))
	}

	qty, err = l.inventory.CurrentQuantity(ctx, shopID, productID)
	require.NoError(t, err)
	assert.Equal(t, 20, qty)
	balance, err = l.reward.CurrentBalance(ctx, shopID)
	require.NoError(t, err)
	assert.Zero(t, balance)

	// the record is gone, but the cascade itself must still be a no-op
	o := New(l.fraud, l.inventory, l.reward)
	again := o.DeleteEffects(ctx, txn.ID, shopID, &productID)
	for _, step := range again.Steps {
		assert.Equal(t, transaction.StepNoop, step.Status, string(step.Step))
	}

	assert.NoError(t, l.inventory.VerifyChain(ctx, shopID, productID))
	assert.NoError(t, l.reward.VerifyChain(ctx, shopID))
}

func TestOversizedSaleIsFlaggedButStillRecorded(t *testing.T) {
	l := newLedgers(t)
	ctx := context.Background()
	shopID := uuid.New()

	txn, report, err := l.txns.Record(ctx, shopID, transaction.RecordInput{
		Quantity: 900,
		Price:    decimal.NewFromInt(1),
		Type:     transaction.TypePurchase,
	})
	require.NoError(t, err)
	require.NotNil(t, txn)

	step, ok := report.Result(transaction.StepFraudCheck)
	require.True(t, ok)
	assert.Equal(t, transaction.StepOK, step.Status)
	assert.Equal(t, 1, step.Detail["alerts"])

	view, err := l.fraud.Score(ctx, shopID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.TotalAlerts)
}
