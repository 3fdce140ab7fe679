package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// EscrowStore implements domain.EscrowStore using PostgreSQL.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates a new EscrowStore backed by the given connection pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

const escrowSelectCols = `id, match_id, player_a, player_b, amount_a, amount_b,
	total, released, created_at, settled_at`

func scanEscrowRow(row pgx.Row) (domain.Escrow, error) {
	var e domain.Escrow
	var amountA, amountB, total int64
	var settledAt *time.Time

	err := row.Scan(
		&e.ID, &e.MatchID, &e.PlayerA, &e.PlayerB,
		&amountA, &amountB, &total,
		&e.Released, &e.CreatedAt, &settledAt,
	)
	if err != nil {
		return domain.Escrow{}, err
	}
	e.AmountA = domain.Amount(amountA)
	e.AmountB = domain.Amount(amountB)
	e.Total = domain.Amount(total)
	if settledAt != nil {
		e.SettledAt = *settledAt
	}
	return e, nil
}

// Create inserts a new escrow. A duplicate ID fails with ErrAlreadyExists.
func (s *EscrowStore) Create(ctx context.Context, escrow domain.Escrow) error {
	const query = `
		INSERT INTO escrows (
			id, match_id, player_a, player_b, amount_a, amount_b,
			total, released, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		escrow.ID, escrow.MatchID, escrow.PlayerA, escrow.PlayerB,
		int64(escrow.AmountA), int64(escrow.AmountB), int64(escrow.Total),
		escrow.Released, escrow.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: escrow %s: %w", escrow.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create escrow %s: %w", escrow.ID, err)
	}
	return nil
}

// Get retrieves a single escrow by ID.
func (s *EscrowStore) Get(ctx context.Context, id string) (domain.Escrow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+escrowSelectCols+` FROM escrows WHERE id = $1`, id)

	e, err := scanEscrowRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escrow{}, fmt.Errorf("postgres: escrow %s: %w", id, domain.ErrNotFound)
		}
		return domain.Escrow{}, fmt.Errorf("postgres: get escrow %s: %w", id, err)
	}
	return e, nil
}

// MarkSettled flags an open escrow as released. The status guard makes the
// transition single-use even across concurrent settlers.
func (s *EscrowStore) MarkSettled(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE escrows SET released = TRUE, settled_at = $2
		WHERE id = $1 AND released = FALSE`

	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("postgres: settle escrow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: escrow %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListOpen returns every escrow that has not been settled, oldest first.
func (s *EscrowStore) ListOpen(ctx context.Context) ([]domain.Escrow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+escrowSelectCols+` FROM escrows
		 WHERE released = FALSE ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open escrows: %w", err)
	}
	defer rows.Close()

	var escrows []domain.Escrow
	for rows.Next() {
		e, err := scanEscrowRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan escrow: %w", err)
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}

// Compile-time interface check.
var _ domain.EscrowStore = (*EscrowStore)(nil)
