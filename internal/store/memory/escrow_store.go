package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// EscrowStore keeps escrow records in a map.
type EscrowStore struct {
	mu      sync.RWMutex
	escrows map[string]domain.Escrow
}

var _ domain.EscrowStore = (*EscrowStore)(nil)

// NewEscrowStore creates an empty EscrowStore.
func NewEscrowStore() *EscrowStore {
	return &EscrowStore{escrows: make(map[string]domain.Escrow)}
}

// Create stores a new escrow. A duplicate ID fails with ErrAlreadyExists.
func (s *EscrowStore) Create(_ context.Context, escrow domain.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.escrows[escrow.ID]; ok {
		return fmt.Errorf("escrow %s: %w", escrow.ID, domain.ErrAlreadyExists)
	}
	s.escrows[escrow.ID] = escrow
	return nil
}

// Get returns the escrow by ID.
func (s *EscrowStore) Get(_ context.Context, id string) (domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	escrow, ok := s.escrows[id]
	if !ok {
		return domain.Escrow{}, fmt.Errorf("escrow %s: %w", id, domain.ErrNotFound)
	}
	return escrow, nil
}

// MarkSettled flags the escrow as released at the given time.
func (s *EscrowStore) MarkSettled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	escrow, ok := s.escrows[id]
	if !ok {
		return fmt.Errorf("escrow %s: %w", id, domain.ErrNotFound)
	}
	escrow.Released = true
	escrow.SettledAt = at
	s.escrows[id] = escrow
	return nil
}

// ListOpen returns every escrow that has not been settled.
func (s *EscrowStore) ListOpen(_ context.Context) ([]domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []domain.Escrow
	for _, escrow := range s.escrows {
		if !escrow.Released {
			open = append(open, escrow)
		}
	}
	return open, nil
}
