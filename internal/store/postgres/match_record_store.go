package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// MatchRecordStore implements domain.MatchRecordStore using PostgreSQL.
type MatchRecordStore struct {
	pool *pgxpool.Pool
}

// NewMatchRecordStore creates a new MatchRecordStore backed by the given
// connection pool.
func NewMatchRecordStore(pool *pgxpool.Pool) *MatchRecordStore {
	return &MatchRecordStore{pool: pool}
}

const matchRecordSelectCols = `match_id, game_type, player_a, player_b, winner,
	stake, payout, score_a, score_b, completed_at`

func scanMatchRecordRows(rows pgx.Rows) ([]domain.MatchRecord, error) {
	var records []domain.MatchRecord
	for rows.Next() {
		var r domain.MatchRecord
		var gameType string
		var stake, payout int64

		if err := rows.Scan(
			&r.MatchID, &gameType, &r.PlayerA, &r.PlayerB, &r.Winner,
			&stake, &payout, &r.ScoreA, &r.ScoreB, &r.CompletedAt,
		); err != nil {
			return nil, err
		}
		r.GameType = domain.GameType(gameType)
		r.Stake = domain.Amount(stake)
		r.Payout = domain.Amount(payout)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Insert stores a settled match result.
func (s *MatchRecordStore) Insert(ctx context.Context, record domain.MatchRecord) error {
	const query = `
		INSERT INTO match_records (
			match_id, game_type, player_a, player_b, winner,
			stake, payout, score_a, score_b, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		record.MatchID, string(record.GameType),
		record.PlayerA, record.PlayerB, record.Winner,
		int64(record.Stake), int64(record.Payout),
		record.ScoreA, record.ScoreB, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert match record %s: %w", record.MatchID, err)
	}
	return nil
}

// ListByPlayer returns records involving address, most recent first, with
// pagination and optional time filtering.
func (s *MatchRecordStore) ListByPlayer(ctx context.Context, address string, opts domain.ListOpts) ([]domain.MatchRecord, error) {
	query := `SELECT ` + matchRecordSelectCols + ` FROM match_records
		WHERE (player_a = $1 OR player_b = $1)`
	args := []any{address}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND completed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND completed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY completed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list match records: %w", err)
	}
	defer rows.Close()

	records, err := scanMatchRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan match records: %w", err)
	}
	return records, nil
}

// ListBefore returns records completed before the cutoff, oldest first, for
// archival sweeps.
func (s *MatchRecordStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchRecordSelectCols+` FROM match_records
		 WHERE completed_at < $1 ORDER BY completed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list match records before %s: %w", before, err)
	}
	defer rows.Close()

	records, err := scanMatchRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan match records: %w", err)
	}
	return records, nil
}

// DeleteBefore removes records completed before the cutoff and reports how
// many rows were deleted.
func (s *MatchRecordStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM match_records WHERE completed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete match records before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.MatchRecordStore = (*MatchRecordStore)(nil)
