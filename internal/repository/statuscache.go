package repository

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"gradehouse/internal/logging"
)

// StatusCache gives the status endpoint a fast path that avoids the
// database while a submission is mid-pipeline. Backed by Redis when
// available, with an in-process map fallback so the service degrades
// instead of failing when Redis is down.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	status    string
	expiresAt time.Time
}

// NewStatusCache builds the cache. A nil client selects the in-process
// fallback.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatusCache{
		client: client,
		ttl:    ttl,
		local:  make(map[string]localEntry),
	}
}

func (c *StatusCache) key(id string) string { return "gradehouse:status:" + id }

// Set records the current status of a submission.
func (c *StatusCache) Set(ctx context.Context, id, status string) {
	if c.client != nil {
		if err := c.client.Set(ctx, c.key(id), status, c.ttl).Err(); err == nil {
			return
		} else {
			logging.S().Debugw("status cache write fell back to local", "error", err)
		}
	}

	c.mu.Lock()
	c.local[id] = localEntry{status: status, expiresAt: time.Now().Add(c.ttl)}
	// Opportunistic expiry so the map cannot grow without bound.
	if len(c.local)%256 == 0 {
		now := time.Now()
		for key, entry := range c.local {
			if now.After(entry.expiresAt) {
				delete(c.local, key)
			}
		}
	}
	c.mu.Unlock()
}

// Get returns the cached status, if any.
func (c *StatusCache) Get(ctx context.Context, id string) (string, bool) {
	if c.client != nil {
		status, err := c.client.Get(ctx, c.key(id)).Result()
		if err == nil {
			return status, true
		}
		if err != redis.Nil {
			logging.S().Debugw("status cache read fell back to local", "error", err)
		}
	}

	c.mu.RLock()
	entry, ok := c.local[id]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.status, true
}

// Delete drops a cached status, typically after the terminal state is
// persisted.
func (c *StatusCache) Delete(ctx context.Context, id string) {
	if c.client != nil {
		_ = c.client.Del(ctx, c.key(id)).Err()
	}
	c.mu.Lock()
	delete(c.local, id)
	c.mu.Unlock()
}
