package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasale/pasale-api/internal/ledger"
)

type testEntry struct {
	key   ledger.Key
	at    time.Time
	delta int
	total int
}

func (e testEntry) LedgerKey() ledger.Key { return e.key }
func (e testEntry) LedgerTime() time.Time { return e.at }
func (e testEntry) Delta() int            { return e.delta }
func (e testEntry) RunningTotal() int     { return e.total }

func TestMemoryLogAppendKeepsChain(t *testing.T) {
	ctx := context.Background()
	log := ledger.NewMemoryLog[testEntry]()
	key := ledger.Key{Owner: "shop", Subject: "product"}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEntry{key: key, at: base, delta: 20, total: 20}))
	require.NoError(t, log.Append(ctx, testEntry{key: key, at: base.Add(time.Minute), delta: -5, total: 15}))

	err := log.Append(ctx, testEntry{key: key, at: base.Add(2 * time.Minute), delta: 3, total: 99})
	require.True(t, errors.Is(err, ledger.ErrChainBroken), "got %v", err)

	latest, ok, err := log.Latest(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15, latest.RunningTotal())

	all, err := log.Range(ctx, key, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.NoError(t, ledger.VerifyChain(all))
	assert.Equal(t, latest.RunningTotal(), ledger.SumDeltas(all))
}

func TestMemoryLogKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	log := ledger.NewMemoryLog[testEntry]()
	a := ledger.Key{Owner: "shop-a"}
	b := ledger.Key{Owner: "shop-b"}
	now := time.Now()

	require.NoError(t, log.Append(ctx, testEntry{key: a, at: now, delta: 10, total: 10}))
	require.NoError(t, log.Append(ctx, testEntry{key: b, at: now, delta: 4, total: 4}))

	_, ok, err := log.Latest(ctx, ledger.Key{Owner: "shop-c"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, log.Keys(), 2)
}

func TestMemoryLogRangeIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	log := ledger.NewMemoryLog[testEntry]()
	key := ledger.Key{Owner: "shop"}
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, testEntry{key: key, at: day.Add(-time.Second), delta: 1, total: 1}))
	require.NoError(t, log.Append(ctx, testEntry{key: key, at: day, delta: 1, total: 2}))
	require.NoError(t, log.Append(ctx, testEntry{key: key, at: day.Add(24 * time.Hour), delta: 1, total: 3}))

	got, err := log.Range(ctx, key, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].RunningTotal())
}

func TestNextTotalRejectsBelowFloor(t *testing.T) {
	next, err := ledger.NextTotal(999, -1000, 0)
	require.True(t, errors.Is(err, ledger.ErrInsufficientBalance))
	assert.Equal(t, 999, next)

	next, err = ledger.NextTotal(1000, -1000, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestVerifyChainDetectsGap(t *testing.T) {
	key := ledger.Key{Owner: "shop"}
	entries := []testEntry{
		{key: key, delta: 5, total: 5},
		{key: key, delta: 5, total: 11},
	}
	assert.True(t, errors.Is(ledger.VerifyChain(entries), ledger.ErrChainBroken))
}

func TestValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	err := ledger.Invalid("points", "must be at least %d", 1000)
	assert.True(t, ledger.IsValidation(err))
	assert.Contains(t, err.Error(), "points")
}

func TestStoreErrorMatchesInternalAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ledger.Internal("insert reward", cause)

	assert.ErrorIs(t, err, ledger.ErrInternal)
	assert.ErrorIs(t, err, cause)
	assert.False(t, ledger.IsNotFound(err))
	assert.Equal(t, "ledger: insert reward: connection refused", err.Error())
}

type markedEntry struct {
	testEntry
	id     int
	marked bool
}

func TestMemoryLogAnnotateMarksOnce(t *testing.T) {
	ctx := context.Background()
	log := ledger.NewMemoryLog[markedEntry]()
	key := ledger.Key{Owner: "shop"}

	require.NoError(t, log.Append(ctx, markedEntry{testEntry: testEntry{key: key, delta: 5, total: 5}, id: 1}))
	require.NoError(t, log.Append(ctx, markedEntry{testEntry: testEntry{key: key, delta: 2, total: 7}, id: 2}))

	mark := func(e markedEntry) (markedEntry, bool) {
		if e.marked {
			return e, false
		}
		e.marked = true
		return e, true
	}
	byID := func(e markedEntry) bool { return e.id == 1 }

	ok, err := log.Annotate(ctx, byID, mark)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = log.Annotate(ctx, byID, mark)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := log.Find(ctx, byID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].marked)

	_, err = log.Annotate(ctx, byID, func(e markedEntry) (markedEntry, bool) {
		e.total = 100
		return e, true
	})
	assert.True(t, errors.Is(err, ledger.ErrChainBroken))
}
