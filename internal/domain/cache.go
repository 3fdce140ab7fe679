package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PresenceCache tracks which players are currently connected, shared across
// server processes.
type PresenceCache interface {
	Heartbeat(ctx context.Context, address string, ttl time.Duration) error
	Remove(ctx context.Context, address string) error
	IsOnline(ctx context.Context, address string) (bool, error)
	OnlineCount(ctx context.Context) (int, error)
}

// LeaderboardCache holds a short-lived copy of the ranked leaderboard so hot
// reads skip the database.
type LeaderboardCache interface {
	SetLeaderboard(ctx context.Context, entries []PlayerStats, ttl time.Duration) error
	GetLeaderboard(ctx context.Context) ([]PlayerStats, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out and durable streams. Player event
// channels and the lobby channel ride on pub/sub; the settlement journal
// rides on a stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
