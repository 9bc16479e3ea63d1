// Package progress caches per-job render progress in Redis so status polls
// never touch the worker. Progress is advisory; postgres remains the source
// of truth for job state.
package progress

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyTTL = 6 * time.Hour

// Cache publishes and reads render progress percentages. A nil Cache is
// valid and drops all updates.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func key(jobID string) string {
	return "progress:" + jobID
}

// Set records a 0-100 progress percentage for a job.
func (c *Cache) Set(ctx context.Context, jobID string, percent int) {
	if c == nil || c.rdb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	// Best effort: a missed update only leaves the displayed percentage stale.
	c.rdb.Set(ctx, key(jobID), percent, keyTTL)
}

// Get returns the cached percentage, or -1 when nothing is known.
func (c *Cache) Get(ctx context.Context, jobID string) int {
	if c == nil || c.rdb == nil {
		return -1
	}
	val, err := c.rdb.Get(ctx, key(jobID)).Result()
	if err != nil {
		return -1
	}
	percent, err := strconv.Atoi(val)
	if err != nil {
		return -1
	}
	return percent
}

// Clear removes the key once a job reaches a terminal state.
func (c *Cache) Clear(ctx context.Context, jobID string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, key(jobID))
}
