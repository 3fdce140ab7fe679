package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// MatchRecordStore keeps settled match results in a slice.
type MatchRecordStore struct {
	mu      sync.RWMutex
	records []domain.MatchRecord
}

var _ domain.MatchRecordStore = (*MatchRecordStore)(nil)

// NewMatchRecordStore creates an empty MatchRecordStore.
func NewMatchRecordStore() *MatchRecordStore {
	return &MatchRecordStore{}
}

// Insert appends a match record.
func (s *MatchRecordStore) Insert(_ context.Context, record domain.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ListByPlayer returns records involving address, most recent first.
func (s *MatchRecordStore) ListByPlayer(_ context.Context, address string, opts domain.ListOpts) ([]domain.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MatchRecord
	for _, r := range s.records {
		if r.PlayerA != address && r.PlayerB != address {
			continue
		}
		if opts.Since != nil && r.CompletedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.CompletedAt.After(*opts.Until) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListBefore returns records completed strictly before the cutoff.
func (s *MatchRecordStore) ListBefore(_ context.Context, before time.Time) ([]domain.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MatchRecord
	for _, r := range s.records {
		if r.CompletedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}

// DeleteBefore removes records completed strictly before the cutoff and
// reports how many were deleted.
func (s *MatchRecordStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.CompletedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}
