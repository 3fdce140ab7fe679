// Package ledger implements balance accounting and match escrow. All amounts
// are fixed-point micro-units (see domain.Amount); arithmetic never touches
// floating point.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// Service owns all balance mutations. Compound operations (escrow create,
// release, refund) are serialized behind a mutex so the debit-both-or-neither
// and conservation invariants hold without relying on store-level
// transactions.
type Service struct {
	accounts domain.AccountStore
	escrows  domain.EscrowStore
	audit    domain.AuditStore
	logger   *slog.Logger

	rakeBps int64

	mu sync.Mutex
}

// New creates a ledger Service. audit may be nil.
func New(accounts domain.AccountStore, escrows domain.EscrowStore, audit domain.AuditStore, rakeBps int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		escrows:  escrows,
		audit:    audit,
		logger:   logger.With(slog.String("component", "ledger")),
		rakeBps:  rakeBps,
	}
}

// Deposit credits amount to the account at address, creating the account if
// it does not exist yet.
func (s *Service) Deposit(ctx context.Context, address string, amount domain.Amount) (domain.Account, error) {
	if amount <= 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	address = normalizeAddress(address)
	if address == "" {
		return domain.Account{}, fmt.Errorf("ledger: %w: empty address", domain.ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accounts.Get(ctx, address)
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger: load account %s: %w", address, err)
	}
	acct.Address = address
	acct.Balance += amount
	acct.Nonce++
	acct.UpdatedAt = time.Now().UTC()

	if err := s.accounts.Put(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("ledger: store account %s: %w", address, err)
	}

	s.logger.Info("deposit",
		slog.String("address", address),
		slog.String("amount", amount.String()),
		slog.String("balance", acct.Balance.String()))
	return acct, nil
}

// Balance returns the current balance for address. Unknown addresses report a
// zero balance.
func (s *Service) Balance(ctx context.Context, address string) (domain.Amount, error) {
	acct, err := s.accounts.Get(ctx, normalizeAddress(address))
	if err != nil {
		return 0, fmt.Errorf("ledger: load account %s: %w", address, err)
	}
	return acct.Balance, nil
}

// Account returns the full account record for address.
func (s *Service) Account(ctx context.Context, address string) (domain.Account, error) {
	acct, err := s.accounts.Get(ctx, normalizeAddress(address))
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger: load account %s: %w", address, err)
	}
	return acct, nil
}

// CreateEscrow atomically debits both players and opens an escrow for the
// match. If either player cannot cover their stake, neither is debited. The
// escrow ID is derived from the match ID, so a second create for the same
// match fails with ErrAlreadyExists.
func (s *Service) CreateEscrow(ctx context.Context, matchID, playerA, playerB string, amountA, amountB domain.Amount) (domain.Escrow, error) {
	if amountA <= 0 || amountB <= 0 {
		return domain.Escrow{}, domain.ErrInvalidAmount
	}
	playerA = normalizeAddress(playerA)
	playerB = normalizeAddress(playerB)
	if playerA == "" || playerB == "" || playerA == playerB {
		return domain.Escrow{}, fmt.Errorf("ledger: %w: escrow requires two distinct players", domain.ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acctA, err := s.accounts.Get(ctx, playerA)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("ledger: load account %s: %w", playerA, err)
	}
	acctB, err := s.accounts.Get(ctx, playerB)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("ledger: load account %s: %w", playerB, err)
	}
	if acctA.Balance < amountA {
		return domain.Escrow{}, fmt.Errorf("ledger: %s: %w", playerA, domain.ErrInsufficientBalance)
	}
	if acctB.Balance < amountB {
		return domain.Escrow{}, fmt.Errorf("ledger: %s: %w", playerB, domain.ErrInsufficientBalance)
	}

	now := time.Now().UTC()
	escrow := domain.Escrow{
		ID:        domain.EscrowID(matchID),
		MatchID:   matchID,
		PlayerA:   playerA,
		PlayerB:   playerB,
		AmountA:   amountA,
		AmountB:   amountB,
		Total:     amountA + amountB,
		CreatedAt: now,
	}

	acctA.Address = playerA
	acctA.Balance -= amountA
	acctA.Nonce++
	acctA.UpdatedAt = now
	if err := s.accounts.Put(ctx, acctA); err != nil {
		return domain.Escrow{}, fmt.Errorf("ledger: debit %s: %w", playerA, err)
	}

	acctB.Address = playerB
	acctB.Balance -= amountB
	acctB.Nonce++
	acctB.UpdatedAt = now
	if err := s.accounts.Put(ctx, acctB); err != nil {
		// Undo the first debit so funds are not stranded.
		s.undoDebit(ctx, acctA, amountA, escrow.ID)
		return domain.Escrow{}, fmt.Errorf("ledger: debit %s: %w", playerB, err)
	}

	// The escrow record goes in only once both stakes are held. An open
	// escrow row therefore always corresponds to debited funds, so a refund
	// replay can never mint money.
	if err := s.escrows.Create(ctx, escrow); err != nil {
		s.undoDebit(ctx, acctB, amountB, escrow.ID)
		s.undoDebit(ctx, acctA, amountA, escrow.ID)
		return domain.Escrow{}, fmt.Errorf("ledger: create escrow %s: %w", escrow.ID, err)
	}

	s.logger.Info("escrow created",
		slog.String("escrow_id", escrow.ID),
		slog.String("match_id", matchID),
		slog.String("player_a", playerA),
		slog.String("player_b", playerB),
		slog.String("total", escrow.Total.String()))
	s.auditLog(ctx, "escrow_created", map[string]any{
		"escrow_id": escrow.ID,
		"match_id":  matchID,
		"total":     int64(escrow.Total),
	})
	return escrow, nil
}

// ReleaseEscrow pays out the escrow to winner, minus the platform rake, and
// marks the escrow settled. An already settled escrow cannot be released
// again.
func (s *Service) ReleaseEscrow(ctx context.Context, escrowID, winner string) (domain.Amount, domain.Amount, error) {
	winner = normalizeAddress(winner)

	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, err := s.getOpenEscrow(ctx, escrowID)
	if err != nil {
		return 0, 0, err
	}
	if winner != escrow.PlayerA && winner != escrow.PlayerB {
		return 0, 0, fmt.Errorf("ledger: %s not party to escrow %s: %w", winner, escrowID, domain.ErrInvalidWinner)
	}

	rake := escrow.Total.Rake(s.rakeBps)
	payout := escrow.Total - rake

	now := time.Now().UTC()
	if err := s.credit(ctx, winner, payout, now); err != nil {
		return 0, 0, err
	}
	if rake > 0 {
		if err := s.credit(ctx, domain.TreasuryAddress, rake, now); err != nil {
			return 0, 0, err
		}
	}
	if err := s.escrows.MarkSettled(ctx, escrowID, now); err != nil {
		return 0, 0, fmt.Errorf("ledger: settle escrow %s: %w", escrowID, err)
	}

	s.logger.Info("escrow released",
		slog.String("escrow_id", escrowID),
		slog.String("winner", winner),
		slog.String("payout", payout.String()),
		slog.String("rake", rake.String()))
	s.auditLog(ctx, "escrow_released", map[string]any{
		"escrow_id": escrowID,
		"winner":    winner,
		"payout":    int64(payout),
		"rake":      int64(rake),
	})
	return payout, rake, nil
}

// RefundEscrow returns each player their own stake and marks the escrow
// settled. No rake is taken on refunds.
func (s *Service) RefundEscrow(ctx context.Context, escrowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, err := s.getOpenEscrow(ctx, escrowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.credit(ctx, escrow.PlayerA, escrow.AmountA, now); err != nil {
		return err
	}
	if err := s.credit(ctx, escrow.PlayerB, escrow.AmountB, now); err != nil {
		return err
	}
	if err := s.escrows.MarkSettled(ctx, escrowID, now); err != nil {
		return fmt.Errorf("ledger: settle escrow %s: %w", escrowID, err)
	}

	s.logger.Info("escrow refunded", slog.String("escrow_id", escrowID))
	s.auditLog(ctx, "escrow_refunded", map[string]any{"escrow_id": escrowID})
	return nil
}

// Escrow returns the escrow record by ID.
func (s *Service) Escrow(ctx context.Context, escrowID string) (domain.Escrow, error) {
	escrow, err := s.escrows.Get(ctx, escrowID)
	if err != nil {
		return domain.Escrow{}, fmt.Errorf("ledger: load escrow %s: %w", escrowID, err)
	}
	return escrow, nil
}

// RakeBps reports the configured rake in basis points.
func (s *Service) RakeBps() int64 { return s.rakeBps }

// getOpenEscrow loads an escrow and verifies it has not been settled. Caller
// must hold s.mu.
func (s *Service) getOpenEscrow(ctx context.Context, escrowID string) (domain.Escrow, error) {
	escrow, err := s.escrows.Get(ctx, escrowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Escrow{}, fmt.Errorf("ledger: escrow %s: %w", escrowID, domain.ErrEscrowNotFound)
		}
		return domain.Escrow{}, fmt.Errorf("ledger: load escrow %s: %w", escrowID, err)
	}
	if escrow.Released {
		return domain.Escrow{}, fmt.Errorf("ledger: escrow %s: %w", escrowID, domain.ErrEscrowReleased)
	}
	return escrow, nil
}

// undoDebit re-credits a stake debit that could not be completed into an
// escrow. Caller must hold s.mu.
func (s *Service) undoDebit(ctx context.Context, acct domain.Account, amount domain.Amount, escrowID string) {
	acct.Balance += amount
	acct.Nonce++
	if err := s.accounts.Put(ctx, acct); err != nil {
		s.logger.Error("escrow debit rollback failed",
			slog.String("escrow_id", escrowID),
			slog.String("address", acct.Address),
			slog.String("error", err.Error()))
	}
}

// credit adds amount to the account at address. Caller must hold s.mu.
func (s *Service) credit(ctx context.Context, address string, amount domain.Amount, at time.Time) error {
	acct, err := s.accounts.Get(ctx, address)
	if err != nil {
		return fmt.Errorf("ledger: load account %s: %w", address, err)
	}
	acct.Address = address
	acct.Balance += amount
	acct.Nonce++
	acct.UpdatedAt = at
	if err := s.accounts.Put(ctx, acct); err != nil {
		return fmt.Errorf("ledger: credit %s: %w", address, err)
	}
	return nil
}

// auditLog records a ledger event when an audit store is configured. Audit
// failures are logged and swallowed; they never fail a settlement.
func (s *Service) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
