package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// StatsStore keeps per-player aggregates in a map.
type StatsStore struct {
	mu    sync.RWMutex
	stats map[string]domain.PlayerStats
}

var _ domain.StatsStore = (*StatsStore)(nil)

// NewStatsStore creates an empty StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]domain.PlayerStats)}
}

// Get returns stats for address.
func (s *StatsStore) Get(_ context.Context, address string) (domain.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[address]
	if !ok {
		return domain.PlayerStats{}, fmt.Errorf("stats %s: %w", address, domain.ErrNotFound)
	}
	return st, nil
}

// Put stores stats, replacing any previous version.
func (s *StatsStore) Put(_ context.Context, stats domain.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.Address] = stats
	return nil
}

// Top returns up to limit players with at least minMatches completed, ordered
// by rating descending. Ties break by wins descending, then address ascending
// so the ordering is deterministic.
func (s *StatsStore) Top(_ context.Context, minMatches, limit int) ([]domain.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PlayerStats
	for _, st := range s.stats {
		if st.Matches >= minMatches {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
