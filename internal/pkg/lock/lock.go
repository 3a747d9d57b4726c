// Package lock serializes work per key: applies to one inventory chain or one
// reward balance must not interleave, while different keys proceed in parallel.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotObtained is returned when a lock could not be acquired before the
// context ended or the retry budget ran out.
var ErrNotObtained = errors.New("lock not obtained")

// Locker hands out exclusive per-key locks.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// TryLocker also offers a non-blocking acquire that fails with ErrNotObtained
// when the key is held.
type TryLocker interface {
	Locker
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are reference counted so the map
// does not grow with every key ever seen.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return k.releaser(key, e), nil
}

func (k *KeyedMutex) TryLock(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	if !e.mu.TryLock() {
		return nil, ErrNotObtained
	}
	e.refs++
	return k.releaser(key, e), nil
}

func (k *KeyedMutex) releaser(key string, e *keyedEntry) func() {
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// RedisLocker serializes a key across every API instance sharing the Redis.
type RedisLocker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a Locker on top of bsm/redislock. ttl bounds how long a
// crashed holder can block others; wait bounds how long Lock retries.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rdb),
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
	}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx2, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	l, err := r.client.Obtain(ctx2, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}

	return func() {
		if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
		}
	}, nil
}

// TryLock obtains the lock without retrying.
func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() { _ = l.Release(context.Background()) }, nil
}
