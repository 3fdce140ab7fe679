package matchmaking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]domain.Amount
	escrows  []domain.Escrow
	refunded []string
	fail     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]domain.Amount)}
}

func (f *fakeLedger) Balance(_ context.Context, address string) (domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeLedger) CreateEscrow(_ context.Context, matchID, playerA, playerB string, amountA, amountB domain.Amount) (domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return domain.Escrow{}, f.fail
	}
	escrow := domain.Escrow{
		ID:      domain.EscrowID(matchID),
		MatchID: matchID,
		PlayerA: playerA,
		PlayerB: playerB,
		AmountA: amountA,
		AmountB: amountB,
		Total:   amountA + amountB,
	}
	f.escrows = append(f.escrows, escrow)
	return escrow, nil
}

func (f *fakeLedger) RefundEscrow(_ context.Context, escrowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, escrowID)
	return nil
}

type fakeStarter struct {
	mu      sync.Mutex
	matches []*domain.Match
	busy    map[string]bool
	err     error
}

func (f *fakeStarter) StartMatch(_ context.Context, match *domain.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.matches = append(f.matches, match)
	return nil
}

func (f *fakeStarter) MatchFor(address string) (*domain.Match, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy[address] {
		return &domain.Match{}, true
	}
	return nil, false
}

func (f *fakeStarter) started() []*domain.Match {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Match(nil), f.matches...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events map[string][]domain.Event
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(map[string][]domain.Event)}
}

func (f *fakePublisher) PublishToPlayer(address string, ev domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[address] = append(f.events[address], ev)
}

func (f *fakePublisher) types(address string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events[address] {
		out = append(out, ev.Type)
	}
	return out
}

func testConfig() Config {
	return Config{
		SweepInterval: time.Second,
		SearchTimeout: 60 * time.Second,
		ToleranceBps:  1000,
		MinStake:      1_000_000,
		MaxStake:      100_000_000,
	}
}

func newTestQueue(t *testing.T) (*Queue, *fakeLedger, *fakeStarter, *fakePublisher) {
	t.Helper()
	ledger := newFakeLedger()
	starter := &fakeStarter{}
	publisher := newFakePublisher()
	q := New(testConfig(), ledger, starter, publisher, nil, nil)
	return q, ledger, starter, publisher
}

func TestFindMatchPairsCompatiblePlayers(t *testing.T) {
	q, ledger, starter, publisher := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000
	ledger.balances["bob"] = 10_000_000

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameQuickMath, 5_000_000))

	matches := starter.started()
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, domain.GameQuickMath, m.GameType)
	assert.Equal(t, domain.MatchWaiting, m.Status)
	assert.Equal(t, domain.Amount(5_000_000), m.Stake)
	assert.Equal(t, domain.EscrowID(m.ID), m.EscrowID)
	assert.Equal(t, 0, q.Size())

	assert.Contains(t, publisher.types("alice"), domain.EventMatchFound)
	assert.Contains(t, publisher.types("bob"), domain.EventMatchFound)
}

func TestPairingUsesLowerStake(t *testing.T) {
	q, ledger, starter, _ := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 100_000_000
	ledger.balances["bob"] = 100_000_000

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameReactionRace, 10_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameReactionRace, 9_200_000))

	matches := starter.started()
	require.Len(t, matches, 1)
	assert.Equal(t, domain.Amount(9_200_000), matches[0].Stake)

	require.Len(t, ledger.escrows, 1)
	assert.Equal(t, domain.Amount(9_200_000), ledger.escrows[0].AmountA)
	assert.Equal(t, domain.Amount(9_200_000), ledger.escrows[0].AmountB)
}

func TestStakeToleranceBoundary(t *testing.T) {
	// Exactly 10% apart pairs; a hair beyond does not.
	q, ledger, starter, _ := newTestQueue(t)
	ctx := context.Background()
	for _, addr := range []string{"alice", "bob", "carol", "dave"} {
		ledger.balances[addr] = 100_000_000
	}

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GamePatternTap, 10_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GamePatternTap, 9_000_000))
	require.Len(t, starter.started(), 1)

	require.NoError(t, q.FindMatch(ctx, "carol", domain.GamePatternTap, 10_000_000))
	require.NoError(t, q.FindMatch(ctx, "dave", domain.GamePatternTap, 8_999_999))
	assert.Len(t, starter.started(), 1)
	assert.Equal(t, 2, q.Size())
}

func TestDifferentGameTypesDoNotPair(t *testing.T) {
	q, ledger, starter, _ := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000
	ledger.balances["bob"] = 10_000_000

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameMemoryMatch, 5_000_000))

	assert.Empty(t, starter.started())
	assert.Equal(t, 2, q.Size())
}

func TestFindMatchValidation(t *testing.T) {
	q, ledger, _, _ := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000

	err := q.FindMatch(ctx, "alice", domain.GameType("BOGUS"), 5_000_000)
	assert.ErrorIs(t, err, domain.ErrInvalidGameType)

	err = q.FindMatch(ctx, "alice", domain.GameQuickMath, 999_999)
	assert.ErrorIs(t, err, domain.ErrStakeOutOfRange)

	err = q.FindMatch(ctx, "alice", domain.GameQuickMath, 100_000_001)
	assert.ErrorIs(t, err, domain.ErrStakeOutOfRange)

	err = q.FindMatch(ctx, "alice", domain.GameQuickMath, 20_000_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestFindMatchAlreadySearching(t *testing.T) {
	q, ledger, _, _ := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	err := q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000)
	assert.ErrorIs(t, err, domain.ErrAlreadySearching)
}

func TestCancelSearch(t *testing.T) {
	q, ledger, _, publisher := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	require.NoError(t, q.CancelSearch(ctx, "alice"))
	assert.False(t, q.Searching("alice"))
	assert.Contains(t, publisher.types("alice"), domain.EventMatchCancelled)

	err := q.CancelSearch(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrNotSearching)
}

func TestSweepEvictsTimedOutTickets(t *testing.T) {
	q, ledger, _, publisher := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000

	base := time.Now()
	q.now = func() time.Time { return base }
	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))

	// Not yet expired.
	q.now = func() time.Time { return base.Add(59 * time.Second) }
	q.Sweep(ctx)
	assert.True(t, q.Searching("alice"))

	q.now = func() time.Time { return base.Add(61 * time.Second) }
	q.Sweep(ctx)
	assert.False(t, q.Searching("alice"))

	types := publisher.types("alice")
	require.Contains(t, types, domain.EventMatchCancelled)
}

func TestEscrowFailureDropsBothPlayers(t *testing.T) {
	q, ledger, starter, publisher := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000
	ledger.balances["bob"] = 10_000_000
	ledger.fail = errors.New("escrow store down")

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameQuickMath, 5_000_000))

	assert.Empty(t, starter.started())
	assert.Equal(t, 0, q.Size())
	assert.Contains(t, publisher.types("alice"), domain.EventMatchCancelled)
	assert.Contains(t, publisher.types("bob"), domain.EventMatchCancelled)
}

func TestFindMatchRejectsPlayerInLiveMatch(t *testing.T) {
	q, ledger, starter, _ := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000
	starter.busy = map[string]bool{"alice": true}

	err := q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000)
	assert.ErrorIs(t, err, domain.ErrAlreadyInMatch)
	assert.False(t, q.Searching("alice"))
}

func TestStartFailureRefundsEscrow(t *testing.T) {
	q, ledger, starter, publisher := newTestQueue(t)
	ctx := context.Background()
	ledger.balances["alice"] = 10_000_000
	ledger.balances["bob"] = 10_000_000
	starter.err = domain.ErrAlreadyInMatch

	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameQuickMath, 5_000_000))

	// The pair funded an escrow, the orchestrator rejected the match, and the
	// escrow came straight back.
	require.Len(t, ledger.escrows, 1)
	require.Len(t, ledger.refunded, 1)
	assert.Equal(t, ledger.escrows[0].ID, ledger.refunded[0])

	assert.Empty(t, starter.started())
	assert.Equal(t, 0, q.Size())
	assert.Contains(t, publisher.types("alice"), domain.EventMatchCancelled)
	assert.Contains(t, publisher.types("bob"), domain.EventMatchCancelled)
}

func TestOldestTicketsPairFirst(t *testing.T) {
	q, ledger, starter, _ := newTestQueue(t)
	ctx := context.Background()
	for _, addr := range []string{"alice", "bob", "carol"} {
		ledger.balances[addr] = 10_000_000
	}

	base := time.Now()
	q.now = func() time.Time { return base }
	require.NoError(t, q.FindMatch(ctx, "alice", domain.GameQuickMath, 5_000_000))
	q.now = func() time.Time { return base.Add(time.Second) }
	require.NoError(t, q.FindMatch(ctx, "bob", domain.GameQuickMath, 5_000_000))
	q.now = func() time.Time { return base.Add(2 * time.Second) }
	require.NoError(t, q.FindMatch(ctx, "carol", domain.GameQuickMath, 5_000_000))

	matches := starter.started()
	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, "alice", m.Players[0].Address)
	assert.Equal(t, "bob", m.Players[1].Address)
	assert.True(t, q.Searching("carol"))
}
