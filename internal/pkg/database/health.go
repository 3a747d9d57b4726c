package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Health pings every configured backend. Missing backends report "disabled".
func Health(ctx context.Context, db *sqlx.DB, client *redis.Client) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"postgres": "disabled", "redis": "disabled"}
	healthy := true

	if db != nil {
		status["postgres"] = "ok"
		if err := db.PingContext(ctx); err != nil {
			status["postgres"] = err.Error()
			healthy = false
		}
	}
	if client != nil {
		status["redis"] = "ok"
		if err := client.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
	}
	return status, healthy
}
