// Package stats maintains per-player ratings, aggregates, and the
// leaderboard.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

const (
	// kFactor scales rating movement per match. The expected score is a flat
	// 0.5 for both sides, so a win moves +K/2, a loss -K/2, a tie 0.
	kFactor = 32.0

	// minLeaderboardMatches is the completed-match floor for ranking.
	minLeaderboardMatches = 3

	// defaultLeaderboardSize caps the leaderboard when the caller does not
	// ask for a specific size.
	defaultLeaderboardSize = 100

	// defaultHistorySize caps match history queries.
	defaultHistorySize = 20
	maxHistorySize     = 100
)

// Service records settled matches and serves stats queries.
type Service struct {
	stats   domain.StatsStore
	records domain.MatchRecordStore
	logger  *slog.Logger
}

// New creates a stats Service.
func New(stats domain.StatsStore, records domain.MatchRecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		stats:   stats,
		records: records,
		logger:  logger.With(slog.String("component", "stats")),
	}
}

// RecordMatch persists the match record and folds the result into both
// players' aggregates.
func (s *Service) RecordMatch(ctx context.Context, record domain.MatchRecord) error {
	if err := s.records.Insert(ctx, record); err != nil {
		return fmt.Errorf("stats: insert record %s: %w", record.MatchID, err)
	}

	if err := s.applyResult(ctx, record, record.PlayerA); err != nil {
		return err
	}
	if err := s.applyResult(ctx, record, record.PlayerB); err != nil {
		return err
	}

	s.logger.Info("match recorded",
		slog.String("match_id", record.MatchID),
		slog.String("winner", record.Winner))
	return nil
}

// applyResult updates one player's aggregates for the match.
func (s *Service) applyResult(ctx context.Context, record domain.MatchRecord, address string) error {
	st, err := s.loadOrInit(ctx, address)
	if err != nil {
		return err
	}

	var score float64
	switch record.Winner {
	case "":
		score = 0.5
		st.Ties++
	case address:
		score = 1.0
		st.Wins++
		st.TotalWon += record.Payout
	default:
		score = 0.0
		st.Losses++
	}

	st.Rating += kFactor * (score - 0.5)
	st.Matches++
	st.TotalWagered += record.Stake
	st.UpdatedAt = record.CompletedAt

	if err := s.stats.Put(ctx, st); err != nil {
		return fmt.Errorf("stats: store %s: %w", address, err)
	}
	return nil
}

// loadOrInit returns existing stats or a fresh record at the starting rating.
func (s *Service) loadOrInit(ctx context.Context, address string) (domain.PlayerStats, error) {
	st, err := s.stats.Get(ctx, address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PlayerStats{
				Address: address,
				Rating:  domain.StartingRating,
			}, nil
		}
		return domain.PlayerStats{}, fmt.Errorf("stats: load %s: %w", address, err)
	}
	return st, nil
}

// PlayerStats returns the aggregates for address. Unknown players report the
// starting rating with zero matches.
func (s *Service) PlayerStats(ctx context.Context, address string) (domain.PlayerStats, error) {
	return s.loadOrInit(ctx, address)
}

// Leaderboard returns up to limit ranked players with at least three
// completed matches, best rating first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]domain.PlayerStats, error) {
	if limit <= 0 || limit > defaultLeaderboardSize {
		limit = defaultLeaderboardSize
	}
	top, err := s.stats.Top(ctx, minLeaderboardMatches, limit)
	if err != nil {
		return nil, fmt.Errorf("stats: leaderboard: %w", err)
	}
	return top, nil
}

// MatchHistory returns the player's settled matches, most recent first.
func (s *Service) MatchHistory(ctx context.Context, address string, limit int) ([]domain.MatchRecord, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}
	records, err := s.records.ListByPlayer(ctx, address, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("stats: history %s: %w", address, err)
	}
	return records, nil
}

// HistorySince returns the player's matches in a time window, for exports.
func (s *Service) HistorySince(ctx context.Context, address string, since time.Time, limit int) ([]domain.MatchRecord, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	records, err := s.records.ListByPlayer(ctx, address, domain.ListOpts{Limit: limit, Since: &since})
	if err != nil {
		return nil, fmt.Errorf("stats: history %s: %w", address, err)
	}
	return records, nil
}
