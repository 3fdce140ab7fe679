package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(memory.NewStatsStore(), memory.NewMatchRecordStore(), nil)
}

func record(id, winner string, at time.Time) domain.MatchRecord {
	return domain.MatchRecord{
		MatchID:     id,
		GameType:    domain.GameQuickMath,
		PlayerA:     "alice",
		PlayerB:     "bob",
		Winner:      winner,
		Stake:       5_000_000,
		Payout:      9_700_000,
		CompletedAt: at,
	}
}

func TestRecordMatchUpdatesBothPlayers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordMatch(ctx, record("m1", "alice", time.Now())))

	alice, err := svc.PlayerStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1016.0, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1, alice.Matches)
	assert.Equal(t, domain.Amount(5_000_000), alice.TotalWagered)
	assert.Equal(t, domain.Amount(9_700_000), alice.TotalWon)

	bob, err := svc.PlayerStats(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 984.0, bob.Rating)
	assert.Equal(t, 1, bob.Losses)
	assert.Equal(t, domain.Amount(0), bob.TotalWon)
}

func TestRecordMatchTieLeavesRatingsUnchanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordMatch(ctx, record("m1", "", time.Now())))

	alice, _ := svc.PlayerStats(ctx, "alice")
	bob, _ := svc.PlayerStats(ctx, "bob")
	assert.Equal(t, 1000.0, alice.Rating)
	assert.Equal(t, 1000.0, bob.Rating)
	assert.Equal(t, 1, alice.Ties)
	assert.Equal(t, 1, bob.Ties)
}

func TestUnknownPlayerHasStartingRating(t *testing.T) {
	svc := newTestService(t)

	st, err := svc.PlayerStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.StartingRating, st.Rating)
	assert.Equal(t, 0, st.Matches)
	assert.Equal(t, 0.0, st.WinRate())
}

func TestWinRate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, svc.RecordMatch(ctx, record("m1", "alice", now)))
	require.NoError(t, svc.RecordMatch(ctx, record("m2", "alice", now)))
	require.NoError(t, svc.RecordMatch(ctx, record("m3", "bob", now)))
	require.NoError(t, svc.RecordMatch(ctx, record("m4", "", now)))

	alice, _ := svc.PlayerStats(ctx, "alice")
	assert.Equal(t, 4, alice.Matches)
	assert.InDelta(t, 50.0, alice.WinRate(), 0.001)
}

func TestLeaderboardRequiresThreeMatches(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// alice and bob play three matches; carol and dave only two.
	require.NoError(t, svc.RecordMatch(ctx, record("m1", "alice", now)))
	require.NoError(t, svc.RecordMatch(ctx, record("m2", "alice", now)))
	require.NoError(t, svc.RecordMatch(ctx, record("m3", "bob", now)))
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.RecordMatch(ctx, domain.MatchRecord{
			MatchID:     fmt.Sprintf("x%d", i),
			PlayerA:     "carol",
			PlayerB:     "dave",
			Winner:      "carol",
			CompletedAt: now,
		}))
	}

	top, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].Address)
	assert.Equal(t, "bob", top[1].Address)
	assert.Greater(t, top[0].Rating, top[1].Rating)
}

func TestLeaderboardLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RecordMatch(ctx, record(fmt.Sprintf("m%d", i), "alice", now)))
	}

	top, err := svc.Leaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].Address)
}

func TestMatchHistoryMostRecentFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 25; i++ {
		require.NoError(t, svc.RecordMatch(ctx, record(fmt.Sprintf("m%d", i), "alice", base.Add(time.Duration(i)*time.Minute))))
	}

	history, err := svc.MatchHistory(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 20)
	assert.Equal(t, "m24", history[0].MatchID)
	assert.Equal(t, "m5", history[19].MatchID)

	// Players outside the match see nothing.
	history, err = svc.MatchHistory(ctx, "carol", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
