package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "shop-1")
			if !assert.NoError(t, err) {
				return
			}
			v := counter
			v++
			counter = v
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, km.locks, "released keys should be dropped")
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()
	<-done
}

func TestKeyedMutexTryLock(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := km.TryLock(ctx, "job")
	require.NoError(t, err)

	_, err = km.TryLock(ctx, "job")
	assert.ErrorIs(t, err, ErrNotObtained)

	unlock()
	assert.Empty(t, km.locks)

	unlock, err = km.TryLock(ctx, "job")
	require.NoError(t, err)
	unlock()
}
