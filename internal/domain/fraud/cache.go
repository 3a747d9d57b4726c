package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pasale/pasale-api/internal/pkg/logger"
)

// ScoreCache serves score reads. Misses and cache failures fall through to the
// repository.
//
// Writers Put the saved score while holding the shop lock. Readers Fill after a
// miss, which never replaces an entry, so a reader that loaded the score before
// a write cannot bring the old value back.
type ScoreCache interface {
	Get(ctx context.Context, shopID uuid.UUID) (*Score, bool)
	Fill(ctx context.Context, s *Score)
	Put(ctx context.Context, s *Score)
}

type noCache struct{}

func (noCache) Get(context.Context, uuid.UUID) (*Score, bool) { return nil, false }
func (noCache) Fill(context.Context, *Score)                  {}
func (noCache) Put(context.Context, *Score)                   {}

// RedisScoreCache keeps JSON snapshots of shop scores in Redis.
type RedisScoreCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisScoreCache(rdb *redis.Client, ttl time.Duration) *RedisScoreCache {
	return &RedisScoreCache{rdb: rdb, ttl: ttl}
}

func scoreKey(shopID uuid.UUID) string {
	return "fraud:score:" + shopID.String()
}

func (c *RedisScoreCache) Get(ctx context.Context, shopID uuid.UUID) (*Score, bool) {
	val, err := c.rdb.Get(ctx, scoreKey(shopID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("shop_id", shopID.String()).Msg("fraud score cache read failed")
		return nil, false
	}
	var s Score
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Fill stores s only when the shop has no cached score.
func (c *RedisScoreCache) Fill(ctx context.Context, s *Score) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, scoreKey(s.ShopID), b, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("shop_id", s.ShopID.String()).Msg("fraud score cache fill failed")
	}
}

// Put replaces the cached score. When the write fails the entry is dropped so
// readers go back to the repository.
func (c *RedisScoreCache) Put(ctx context.Context, s *Score) {
	b, err := json.Marshal(s)
	if err == nil {
		err = c.rdb.Set(ctx, scoreKey(s.ShopID), b, c.ttl).Err()
	}
	if err == nil {
		return
	}
	logger.FromContext(ctx).Warn().Err(err).Str("shop_id", s.ShopID.String()).Msg("fraud score cache write failed")
	if err := c.rdb.Del(ctx, scoreKey(s.ShopID)).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("shop_id", s.ShopID.String()).Msg("fraud score cache invalidation failed")
	}
}
