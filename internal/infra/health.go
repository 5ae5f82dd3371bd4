package infra

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Status values reported per dependency.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusInMemory = "in-memory"
)

// Health pings the configured backing stores. Nil stores report StatusInMemory.
type Health struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// Check returns the status of each dependency and whether all reachable ones are up.
func (h Health) Check(ctx context.Context) (map[string]string, bool) {
	out := map[string]string{"postgres": StatusInMemory, "redis": StatusInMemory}
	ok := true
	if h.DB != nil {
		out["postgres"] = StatusUp
		if err := h.DB.Ping(ctx); err != nil {
			out["postgres"] = StatusDown
			ok = false
		}
	}
	if h.Redis != nil {
		out["redis"] = StatusUp
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			out["redis"] = StatusDown
			ok = false
		}
	}
	return out, ok
}
