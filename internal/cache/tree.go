// Package cache memoizes the built family tree in Redis. The store stays the
// source of truth; every mutation path calls Invalidate and the next read
// rebuilds. A cache failure is never an error, only a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"giapha/internal/tree"
)

const treeKey = "giapha:tree:v1"

type TreeCache struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache wraps an existing Redis client. A nil client disables caching
// entirely; every Get becomes a miss and Set/Invalidate become no-ops.
func NewTreeCache(logger *slog.Logger, client *redis.Client, ttl time.Duration) *TreeCache {
	return &TreeCache{logger: logger, client: client, ttl: ttl}
}

func (c *TreeCache) Get(ctx context.Context) (tree.Result, bool) {
	var result tree.Result
	if c.client == nil {
		return result, false
	}

	raw, err := c.client.Get(ctx, treeKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "tree cache read failed", slog.String("error", err.Error()))
		}
		return result, false
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.WarnContext(ctx, "tree cache entry is corrupt, dropping it", slog.String("error", err.Error()))
		c.Invalidate(ctx)
		return tree.Result{}, false
	}
	return result, true
}

func (c *TreeCache) Set(ctx context.Context, result tree.Result) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.WarnContext(ctx, "tree cache encode failed", slog.String("error", err.Error()))
		return
	}
	if err := c.client.Set(ctx, treeKey, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "tree cache write failed", slog.String("error", err.Error()))
	}
}

func (c *TreeCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, treeKey).Err(); err != nil {
		c.logger.WarnContext(ctx, "tree cache invalidation failed", slog.String("error", err.Error()))
	}
}
