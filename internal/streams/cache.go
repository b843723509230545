// Package streams caches current stream locators in Redis so HLS edge
// players and other services can resolve a session's playlist without asking
// this process.
package streams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "stream:"
	cmdTimeout = 2 * time.Second
)

// Cache stores stream locators keyed by session id with a TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a stream locator cache.
func NewCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// CacheLocator stores the session's playlist URL under stream:<session_id>.
func (c *Cache) CacheLocator(sessionID uuid.UUID, playlistURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	return c.client.SetEx(ctx, keyPrefix+sessionID.String(), playlistURL, c.ttl).Err()
}

// DropLocator removes the session's locator.
func (c *Cache) DropLocator(sessionID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	return c.client.Del(ctx, keyPrefix+sessionID.String()).Err()
}

// Locator returns the cached playlist URL, or "" when absent or expired.
func (c *Cache) Locator(sessionID uuid.UUID) string {
	ctx, cancel := context.WithTimeout(context.Background(), cmdTimeout)
	defer cancel()
	v, err := c.client.Get(ctx, keyPrefix+sessionID.String()).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("stream locator lookup failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
		return ""
	}
	return v
}
