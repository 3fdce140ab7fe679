package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Get returns the account at address. Unknown addresses yield a zero-balance
// account; rows only exist after the first Put.
func (s *AccountStore) Get(ctx context.Context, address string) (domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT address, balance, nonce, updated_at FROM accounts WHERE address = $1`, address)

	var a domain.Account
	var balance int64
	err := row.Scan(&a.Address, &balance, &a.Nonce, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{Address: address}, nil
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", address, err)
	}
	a.Balance = domain.Amount(balance)
	return a, nil
}

// Put upserts the account row.
func (s *AccountStore) Put(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (address, balance, nonce, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			balance    = EXCLUDED.balance,
			nonce      = EXCLUDED.nonce,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		account.Address, int64(account.Balance), account.Nonce, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: put account %s: %w", account.Address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
