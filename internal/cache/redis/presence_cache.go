package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PresenceCache implements domain.PresenceCache using per-player keys with a
// TTL. Each connected session refreshes "presence:{address}" on its
// heartbeat; a key that expires means the player dropped without a clean
// disconnect.
type PresenceCache struct {
	rdb *redis.Client
}

// NewPresenceCache creates a PresenceCache backed by the given Client.
func NewPresenceCache(c *Client) *PresenceCache {
	return &PresenceCache{rdb: c.Underlying()}
}

func presenceKey(address string) string {
	return "presence:" + address
}

// Heartbeat marks address online for ttl.
func (pc *PresenceCache) Heartbeat(ctx context.Context, address string, ttl time.Duration) error {
	if err := pc.rdb.Set(ctx, presenceKey(address), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: presence heartbeat %s: %w", address, err)
	}
	return nil
}

// Remove clears the presence mark on a clean disconnect.
func (pc *PresenceCache) Remove(ctx context.Context, address string) error {
	if err := pc.rdb.Del(ctx, presenceKey(address)).Err(); err != nil {
		return fmt.Errorf("redis: presence remove %s: %w", address, err)
	}
	return nil
}

// IsOnline reports whether address has a live presence mark.
func (pc *PresenceCache) IsOnline(ctx context.Context, address string) (bool, error) {
	n, err := pc.rdb.Exists(ctx, presenceKey(address)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: presence check %s: %w", address, err)
	}
	return n > 0, nil
}

// OnlineCount counts live presence marks across all server processes. It
// scans rather than KEYS so large keyspaces do not block the server.
func (pc *PresenceCache) OnlineCount(ctx context.Context) (int, error) {
	var count int
	var cursor uint64
	for {
		keys, next, err := pc.rdb.Scan(ctx, cursor, presenceKey("*"), 256).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: presence scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Compile-time interface check.
var _ domain.PresenceCache = (*PresenceCache)(nil)
