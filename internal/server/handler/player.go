package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// playerStatsSource provides per-player aggregates and history.
type playerStatsSource interface {
	PlayerStats(ctx context.Context, address string) (domain.PlayerStats, error)
	MatchHistory(ctx context.Context, address string, limit int) ([]domain.MatchRecord, error)
}

// playerAccountSource provides balance lookups.
type playerAccountSource interface {
	Account(ctx context.Context, address string) (domain.Account, error)
}

// PlayerHandler serves per-player stats, history, and balance endpoints.
type PlayerHandler struct {
	stats  playerStatsSource
	ledger playerAccountSource
	logger *slog.Logger
}

// NewPlayerHandler creates a PlayerHandler.
func NewPlayerHandler(stats playerStatsSource, ledger playerAccountSource, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{
		stats:  stats,
		ledger: ledger,
		logger: logHandler(logger, "player"),
	}
}

// GetStats responds with a player's aggregate record. Unknown players get the
// starting rating with zero counters.
// GET /api/players/{address}/stats
func (h *PlayerHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	st, err := h.stats.PlayerStats(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats query failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   st,
		"winRate": st.WinRate(),
	})
}

// GetHistory responds with a player's recent settled matches, most recent
// first.
// GET /api/players/{address}/history?limit=N
func (h *PlayerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.stats.MatchHistory(r.Context(), address, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []domain.MatchRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": records,
	})
}

// GetBalance responds with a player's ledger account.
// GET /api/players/{address}/balance
func (h *PlayerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	account, err := h.ledger.Account(r.Context(), address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "account query failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}
