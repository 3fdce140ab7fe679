package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// VoucherStore keeps signed settlement vouchers in a map keyed by escrow ID.
type VoucherStore struct {
	mu       sync.RWMutex
	vouchers map[string]domain.SettlementVoucher
}

var _ domain.VoucherStore = (*VoucherStore)(nil)

// NewVoucherStore creates an empty VoucherStore.
func NewVoucherStore() *VoucherStore {
	return &VoucherStore{vouchers: make(map[string]domain.SettlementVoucher)}
}

// Put stores a voucher, replacing any previous version for the same escrow.
func (s *VoucherStore) Put(_ context.Context, voucher domain.SettlementVoucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[voucher.EscrowID] = voucher
	return nil
}

// Get returns the voucher for escrowID.
func (s *VoucherStore) Get(_ context.Context, escrowID string) (domain.SettlementVoucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vouchers[escrowID]
	if !ok {
		return domain.SettlementVoucher{}, fmt.Errorf("voucher %s: %w", escrowID, domain.ErrNotFound)
	}
	return v, nil
}
