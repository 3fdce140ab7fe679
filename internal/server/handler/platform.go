package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// platformStatsSource provides the live platform counters.
type platformStatsSource interface {
	Stats(ctx context.Context) domain.PlatformStats
}

// PlatformHandler serves the platform activity snapshot.
type PlatformHandler struct {
	gateway platformStatsSource
}

// NewPlatformHandler creates a PlatformHandler.
func NewPlatformHandler(gateway platformStatsSource) *PlatformHandler {
	return &PlatformHandler{gateway: gateway}
}

// GetStats responds with the current online, searching, and in-match counts.
// GET /api/stats
func (h *PlatformHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Stats(r.Context()))
}
