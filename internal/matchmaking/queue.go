// Package matchmaking pairs searching players into stake-backed matches.
package matchmaking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// escrowService is the slice of the ledger the queue needs.
type escrowService interface {
	Balance(ctx context.Context, address string) (domain.Amount, error)
	CreateEscrow(ctx context.Context, matchID, playerA, playerB string, amountA, amountB domain.Amount) (domain.Escrow, error)
	RefundEscrow(ctx context.Context, escrowID string) error
}

// MatchStarter receives a freshly paired match. The orchestrator implements
// it; the match is in WAITING state with its escrow already funded. MatchFor
// lets the queue turn away players who are still in a live match.
type MatchStarter interface {
	StartMatch(ctx context.Context, match *domain.Match) error
	MatchFor(address string) (*domain.Match, bool)
}

// Config holds the pairing parameters.
type Config struct {
	SweepInterval time.Duration
	SearchTimeout time.Duration
	// ToleranceBps is the maximum relative stake difference, in basis points
	// of the larger stake.
	ToleranceBps int64
	MinStake     domain.Amount
	MaxStake     domain.Amount
	// FindRateLimit caps findMatch calls per player per minute. Zero disables
	// the limit.
	FindRateLimit int
}

type ticket struct {
	address    string
	gameType   domain.GameType
	stake      domain.Amount
	enqueuedAt time.Time
}

// Queue is the matchmaking queue. A single sweep goroutine pairs compatible
// tickets oldest-first and evicts tickets that out-waited the search timeout.
type Queue struct {
	cfg       Config
	ledger    escrowService
	starter   MatchStarter
	publisher domain.EventPublisher
	limiter   domain.RateLimiter
	logger    *slog.Logger

	mu      sync.Mutex
	tickets map[string]*ticket

	now func() time.Time
}

// New creates a Queue. limiter may be nil to disable per-player rate limiting.
func New(cfg Config, ledger escrowService, starter MatchStarter, publisher domain.EventPublisher, limiter domain.RateLimiter, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cfg:       cfg,
		ledger:    ledger,
		starter:   starter,
		publisher: publisher,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "matchmaking")),
		tickets:   make(map[string]*ticket),
		now:       time.Now,
	}
}

// Run sweeps the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	tick := time.NewTicker(q.cfg.SweepInterval)
	defer tick.Stop()

	q.logger.Info("queue started",
		slog.Duration("sweep_interval", q.cfg.SweepInterval),
		slog.Duration("search_timeout", q.cfg.SearchTimeout))

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("queue stopped")
			return ctx.Err()
		case <-tick.C:
			q.Sweep(ctx)
		}
	}
}

// FindMatch enqueues address for a match of gameType at stake. The player is
// paired as soon as a compatible opponent is available, possibly within this
// call.
func (q *Queue) FindMatch(ctx context.Context, address string, gameType domain.GameType, stake domain.Amount) error {
	if !gameType.Valid() {
		return fmt.Errorf("matchmaking: %q: %w", gameType, domain.ErrInvalidGameType)
	}
	if stake < q.cfg.MinStake || stake > q.cfg.MaxStake {
		return fmt.Errorf("matchmaking: stake %s outside [%s, %s]: %w",
			stake, q.cfg.MinStake, q.cfg.MaxStake, domain.ErrStakeOutOfRange)
	}

	if q.limiter != nil && q.cfg.FindRateLimit > 0 {
		ok, err := q.limiter.Allow(ctx, "mm:find:"+address, q.cfg.FindRateLimit, time.Minute)
		if err != nil {
			// Fail open on limiter errors so matchmaking survives a cache
			// outage.
			q.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		} else if !ok {
			return domain.ErrRateLimited
		}
	}

	if _, busy := q.starter.MatchFor(address); busy {
		return fmt.Errorf("matchmaking: %s: %w", address, domain.ErrAlreadyInMatch)
	}

	balance, err := q.ledger.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("matchmaking: check balance: %w", err)
	}
	if balance < stake {
		return domain.ErrInsufficientBalance
	}

	q.mu.Lock()
	if _, ok := q.tickets[address]; ok {
		q.mu.Unlock()
		return domain.ErrAlreadySearching
	}
	q.tickets[address] = &ticket{
		address:    address,
		gameType:   gameType,
		stake:      stake,
		enqueuedAt: q.now(),
	}
	q.mu.Unlock()

	q.logger.Info("player searching",
		slog.String("address", address),
		slog.String("game_type", string(gameType)),
		slog.String("stake", stake.String()))
	q.publish(address, domain.EventSearching, map[string]any{
		"gameType": gameType,
		"stake":    stake,
	})

	q.tryPair(ctx)
	return nil
}

// CancelSearch removes address from the queue.
func (q *Queue) CancelSearch(_ context.Context, address string) error {
	q.mu.Lock()
	_, ok := q.tickets[address]
	if ok {
		delete(q.tickets, address)
	}
	q.mu.Unlock()

	if !ok {
		return domain.ErrNotSearching
	}
	q.logger.Info("search cancelled", slog.String("address", address))
	q.publish(address, domain.EventMatchCancelled, map[string]any{"reason": "cancelled"})
	return nil
}

// Remove silently drops address from the queue, for disconnect cleanup.
func (q *Queue) Remove(address string) {
	q.mu.Lock()
	delete(q.tickets, address)
	q.mu.Unlock()
}

// Searching reports whether address is currently queued.
func (q *Queue) Searching(address string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tickets[address]
	return ok
}

// Size returns the number of queued players.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}

// Sweep evicts timed-out tickets and pairs whatever remains. Run calls it on
// every tick; tests call it directly.
func (q *Queue) Sweep(ctx context.Context) {
	cutoff := q.now().Add(-q.cfg.SearchTimeout)

	q.mu.Lock()
	var expired []string
	for addr, t := range q.tickets {
		if t.enqueuedAt.Before(cutoff) {
			expired = append(expired, addr)
			delete(q.tickets, addr)
		}
	}
	q.mu.Unlock()

	for _, addr := range expired {
		q.logger.Info("search timed out", slog.String("address", addr))
		q.publish(addr, domain.EventMatchCancelled, map[string]any{"reason": "timeout"})
	}

	q.tryPair(ctx)
}

// tryPair repeatedly pairs the oldest compatible tickets until no pair
// remains.
func (q *Queue) tryPair(ctx context.Context) {
	for {
		a, b, ok := q.takePair()
		if !ok {
			return
		}
		q.startMatch(ctx, a, b)
	}
}

// takePair finds and removes the oldest compatible ticket pair.
func (q *Queue) takePair() (*ticket, *ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := make([]*ticket, 0, len(q.tickets))
	for _, t := range q.tickets {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].enqueuedAt.Before(ordered[j].enqueuedAt)
	})

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if compatible(ordered[i], ordered[j], q.cfg.ToleranceBps) {
				a, b := ordered[i], ordered[j]
				delete(q.tickets, a.address)
				delete(q.tickets, b.address)
				return a, b, true
			}
		}
	}
	return nil, nil, false
}

// compatible reports whether two tickets can form a match: same game type and
// a relative stake difference within tolerance. All integer arithmetic; the
// difference is measured against the larger stake.
func compatible(a, b *ticket, toleranceBps int64) bool {
	if a.gameType != b.gameType {
		return false
	}
	hi, lo := a.stake, b.stake
	if hi < lo {
		hi, lo = lo, hi
	}
	diff := int64(hi - lo)
	return diff*10_000 <= toleranceBps*int64(hi)
}

// startMatch funds the escrow at the lower of the two stakes and hands the
// match to the orchestrator. If escrow funding fails, both players are
// notified and dropped from the queue; if the orchestrator rejects the match,
// the escrow is refunded before the players are notified.
func (q *Queue) startMatch(ctx context.Context, a, b *ticket) {
	stake := a.stake
	if b.stake < stake {
		stake = b.stake
	}

	matchID := uuid.NewString()
	escrow, err := q.ledger.CreateEscrow(ctx, matchID, a.address, b.address, stake, stake)
	if err != nil {
		q.logger.Error("escrow funding failed",
			slog.String("match_id", matchID),
			slog.String("player_a", a.address),
			slog.String("player_b", b.address),
			slog.String("error", err.Error()))
		reason := map[string]any{"reason": "escrow_failed"}
		q.publish(a.address, domain.EventMatchCancelled, reason)
		q.publish(b.address, domain.EventMatchCancelled, reason)
		return
	}

	match := &domain.Match{
		ID:       matchID,
		GameType: a.gameType,
		Players: [2]domain.MatchPlayer{
			{Address: a.address, Connected: true},
			{Address: b.address, Connected: true},
		},
		Stake:     stake,
		Status:    domain.MatchWaiting,
		EscrowID:  escrow.ID,
		CreatedAt: q.now().UTC(),
	}

	q.logger.Info("match found",
		slog.String("match_id", matchID),
		slog.String("game_type", string(match.GameType)),
		slog.String("player_a", a.address),
		slog.String("player_b", b.address),
		slog.String("stake", stake.String()))

	if err := q.starter.StartMatch(ctx, match); err != nil {
		q.logger.Error("match start failed",
			slog.String("match_id", matchID),
			slog.String("error", err.Error()))
		// The stakes are already in escrow; hand them back so the failed
		// start leaves both balances untouched.
		if rErr := q.ledger.RefundEscrow(ctx, escrow.ID); rErr != nil {
			q.logger.Error("escrow refund failed",
				slog.String("escrow_id", escrow.ID),
				slog.String("error", rErr.Error()))
		}
		reason := map[string]any{"reason": "start_failed"}
		q.publish(a.address, domain.EventMatchCancelled, reason)
		q.publish(b.address, domain.EventMatchCancelled, reason)
		return
	}

	q.notifyFound(a.address, b.address, match)
	q.notifyFound(b.address, a.address, match)
}

func (q *Queue) notifyFound(address, opponent string, match *domain.Match) {
	q.publish(address, domain.EventMatchFound, map[string]any{
		"matchId":  match.ID,
		"gameType": match.GameType,
		"stake":    match.Stake,
		"opponent": opponent,
		"escrowId": match.EscrowID,
	})
}

func (q *Queue) publish(address, eventType string, payload any) {
	if q.publisher == nil {
		return
	}
	ev, err := domain.NewEvent(eventType, payload)
	if err != nil {
		q.logger.Warn("encode event failed", slog.String("type", eventType), slog.String("error", err.Error()))
		return
	}
	q.publisher.PublishToPlayer(address, ev)
}
