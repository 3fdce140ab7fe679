package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// leaderboardCacheTTL bounds staleness of the cached ranking.
const leaderboardCacheTTL = 30 * time.Second

// rankingSource provides the ranked leaderboard from the primary store.
type rankingSource interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.PlayerStats, error)
}

// LeaderboardHandler serves the ranked leaderboard, fronted by an optional
// cache.
type LeaderboardHandler struct {
	stats  rankingSource
	cache  domain.LeaderboardCache
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler. cache may be nil.
func NewLeaderboardHandler(stats rankingSource, cache domain.LeaderboardCache, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		stats:  stats,
		cache:  cache,
		logger: logHandler(logger, "leaderboard"),
	}
}

// GetLeaderboard responds with the ranked top players. A full-size request is
// served from the cache when fresh; explicit limits always hit the store.
// GET /api/leaderboard?limit=N
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if limit == 0 && h.cache != nil {
		if entries, err := h.cache.GetLeaderboard(ctx); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"leaderboard": entries,
				"cached":      true,
			})
			return
		}
	}

	entries, err := h.stats.Leaderboard(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "leaderboard query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.PlayerStats{}
	}

	if limit == 0 && h.cache != nil {
		if err := h.cache.SetLeaderboard(ctx, entries, leaderboardCacheTTL); err != nil {
			h.logger.WarnContext(ctx, "leaderboard cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": entries,
		"cached":      false,
	})
}
