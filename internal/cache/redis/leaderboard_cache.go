package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/redis/go-redis/v9"
)

// leaderboardKey is the single key holding the serialized ranked leaderboard.
const leaderboardKey = "leaderboard:top"

// LeaderboardCache implements domain.LeaderboardCache as a JSON blob with a
// TTL. The leaderboard is recomputed from the stats store on every cache
// miss, so a short TTL keeps it fresh without hammering the database.
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
func NewLeaderboardCache(c *Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: c.Underlying()}
}

// SetLeaderboard stores the ranked entries for ttl.
func (lc *LeaderboardCache) SetLeaderboard(ctx context.Context, entries []domain.PlayerStats, ttl time.Duration) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard: %w", err)
	}
	if err := lc.rdb.Set(ctx, leaderboardKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set leaderboard: %w", err)
	}
	return nil
}

// GetLeaderboard returns the cached entries, or domain.ErrNotFound on a miss.
func (lc *LeaderboardCache) GetLeaderboard(ctx context.Context) ([]domain.PlayerStats, error) {
	data, err := lc.rdb.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get leaderboard: %w", err)
	}
	var entries []domain.PlayerStats
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("redis: unmarshal leaderboard: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.LeaderboardCache = (*LeaderboardCache)(nil)
