package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

const statsSelectCols = `address, rating, wins, losses, ties, matches,
	total_wagered, total_won, updated_at`

func scanStatsRow(row pgx.Row) (domain.PlayerStats, error) {
	var st domain.PlayerStats
	var wagered, won int64

	err := row.Scan(
		&st.Address, &st.Rating, &st.Wins, &st.Losses, &st.Ties,
		&st.Matches, &wagered, &won, &st.UpdatedAt,
	)
	if err != nil {
		return domain.PlayerStats{}, err
	}
	st.TotalWagered = domain.Amount(wagered)
	st.TotalWon = domain.Amount(won)
	return st, nil
}

// Get retrieves stats for one player.
func (s *StatsStore) Get(ctx context.Context, address string) (domain.PlayerStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statsSelectCols+` FROM player_stats WHERE address = $1`, address)

	st, err := scanStatsRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PlayerStats{}, fmt.Errorf("postgres: stats %s: %w", address, domain.ErrNotFound)
		}
		return domain.PlayerStats{}, fmt.Errorf("postgres: get stats %s: %w", address, err)
	}
	return st, nil
}

// Put upserts a player's aggregates.
func (s *StatsStore) Put(ctx context.Context, stats domain.PlayerStats) error {
	const query = `
		INSERT INTO player_stats (
			address, rating, wins, losses, ties, matches,
			total_wagered, total_won, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address) DO UPDATE SET
			rating        = EXCLUDED.rating,
			wins          = EXCLUDED.wins,
			losses        = EXCLUDED.losses,
			ties          = EXCLUDED.ties,
			matches       = EXCLUDED.matches,
			total_wagered = EXCLUDED.total_wagered,
			total_won     = EXCLUDED.total_won,
			updated_at    = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		stats.Address, stats.Rating, stats.Wins, stats.Losses, stats.Ties,
		stats.Matches, int64(stats.TotalWagered), int64(stats.TotalWon),
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put stats %s: %w", stats.Address, err)
	}
	return nil
}

// Top returns up to limit ranked players with at least minMatches completed.
// Ties break by wins, then address, so pagination stays stable.
func (s *StatsStore) Top(ctx context.Context, minMatches, limit int) ([]domain.PlayerStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statsSelectCols+` FROM player_stats
		 WHERE matches >= $1
		 ORDER BY rating DESC, wins DESC, address ASC
		 LIMIT $2`, minMatches, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top stats: %w", err)
	}
	defer rows.Close()

	var out []domain.PlayerStats
	for rows.Next() {
		st, err := scanStatsRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.StatsStore = (*StatsStore)(nil)
