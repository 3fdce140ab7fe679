// Package memory provides in-process store implementations backed by maps.
// They power the default single-node dev mode and the test suites; the
// postgres package provides the durable equivalents.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// AccountStore keeps balances in a map.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

// Get returns the account at address. Unknown addresses yield a zero-balance
// account rather than an error; accounts come into existence on first Put.
func (s *AccountStore) Get(_ context.Context, address string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acct, ok := s.accounts[address]; ok {
		return acct, nil
	}
	return domain.Account{Address: address}, nil
}

// Put stores the account, replacing any previous version.
func (s *AccountStore) Put(_ context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Address] = account
	return nil
}
