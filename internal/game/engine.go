// Package game runs matches from the ready handshake through settlement.
// The engine owns every live match; per-game rules live in their own files
// and the engine dispatches to them with an exhaustive type switch on the
// match's state payload.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// settler is the slice of the ledger the engine needs for settlement.
type settler interface {
	ReleaseEscrow(ctx context.Context, escrowID, winner string) (payout, rake domain.Amount, err error)
	RefundEscrow(ctx context.Context, escrowID string) error
}

// recorder feeds settled results into the stats service.
type recorder interface {
	RecordMatch(ctx context.Context, record domain.MatchRecord) error
}

// Config holds orchestration and per-game pacing. Every value is a deadline
// resolved on the engine tick, so tests can shrink them to milliseconds.
type Config struct {
	ReadyTimeout    time.Duration
	DisconnectGrace time.Duration
	TickInterval    time.Duration

	Reaction ReactionConfig
	Memory   MemoryConfig
	Math     MathConfig
	Pattern  PatternConfig
}

// ReactionConfig parameterizes Reaction Race.
type ReactionConfig struct {
	Duration   time.Duration
	Rounds     int
	MinDelay   time.Duration
	ExtraDelay time.Duration
	RoundPause time.Duration
}

// MemoryConfig parameterizes Memory Match.
type MemoryConfig struct {
	Duration  time.Duration
	Pairs     int
	HideDelay time.Duration
}

// MathConfig parameterizes Quick Math.
type MathConfig struct {
	Duration time.Duration
	Problems int
}

// PatternConfig parameterizes Pattern Tap.
type PatternConfig struct {
	Duration    time.Duration
	StartLength int
	ShowBase    time.Duration
	ShowPerStep time.Duration
	ReshowDelay time.Duration
}

// endReason explains how a match concluded.
const (
	reasonCompleted = "completed"
	reasonTimeout   = "timeout"
	reasonForfeit   = "forfeit"
	reasonAborted   = "aborted"
)

// pendingEvent is an event queued during a state transition, flushed to the
// hub once the transition is complete. target "" broadcasts to both players.
type pendingEvent struct {
	target string
	event  domain.Event
}

// liveMatch is the engine-private state of one running match.
type liveMatch struct {
	match *domain.Match
	data  domain.GameData

	seq uint64

	// readyDeadline holds the per-player auto-ready deadline while the match
	// is in the WAITING state.
	readyDeadline [2]time.Time
	// graceDeadline is the per-player forfeit deadline while disconnected.
	graceDeadline [2]time.Time
	// deadline is the hard end of the game once ACTIVE.
	deadline time.Time
	// phaseAt is the next timed phase transition for the rule engine.
	phaseAt time.Time

	pending []pendingEvent
}

// emit queues an event for one player, stamping the match ID and the next
// sequence number. Sequence numbers are strictly increasing per match across
// every event type.
func (lm *liveMatch) emit(target, eventType string, payload any) {
	ev, err := domain.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	lm.seq++
	ev.MatchID = lm.match.ID
	ev.Seq = lm.seq
	lm.pending = append(lm.pending, pendingEvent{target: target, event: ev})
}

// emitBoth queues an event for both players.
func (lm *liveMatch) emitBoth(eventType string, payload any) {
	lm.emit("", eventType, payload)
}

// Engine is the match orchestrator.
type Engine struct {
	cfg       Config
	ledger    settler
	stats     recorder
	publisher domain.EventPublisher
	logger    *slog.Logger

	mu       sync.Mutex
	matches  map[string]*liveMatch
	byPlayer map[string]string

	// onSettled runs after a match settles, outside the engine lock. The
	// gateway uses it for voucher signing and operator notifications.
	onSettled func(ctx context.Context, match *domain.Match, record domain.MatchRecord)

	now func() time.Time
}

// New creates an Engine.
func New(cfg Config, ledger settler, stats recorder, publisher domain.EventPublisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		ledger:    ledger,
		stats:     stats,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "game")),
		matches:   make(map[string]*liveMatch),
		byPlayer:  make(map[string]string),
	}
}

// SetOnSettled registers a post-settlement hook. Must be called before Run.
func (e *Engine) SetOnSettled(fn func(ctx context.Context, match *domain.Match, record domain.MatchRecord)) {
	e.onSettled = fn
}

// Run drives match timers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	tick := time.NewTicker(e.cfg.TickInterval)
	defer tick.Stop()

	e.logger.Info("engine started", slog.Duration("tick_interval", e.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case now := <-tick.C:
			e.Tick(ctx, now)
		}
	}
}

// StartMatch registers a freshly paired match and opens the ready handshake.
// Each player has until their auto-ready deadline to confirm; the engine
// confirms for them when it passes.
func (e *Engine) StartMatch(ctx context.Context, match *domain.Match) error {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.matches[match.ID]; ok {
		return fmt.Errorf("game: match %s: %w", match.ID, domain.ErrAlreadyExists)
	}
	for i := range match.Players {
		if _, ok := e.byPlayer[match.Players[i].Address]; ok {
			return fmt.Errorf("game: %s: %w", match.Players[i].Address, domain.ErrAlreadyInMatch)
		}
	}

	match.Status = domain.MatchWaiting
	lm := &liveMatch{match: match}
	lm.readyDeadline[0] = now.Add(e.cfg.ReadyTimeout)
	lm.readyDeadline[1] = now.Add(e.cfg.ReadyTimeout)

	e.matches[match.ID] = lm
	for i := range match.Players {
		e.byPlayer[match.Players[i].Address] = match.ID
	}

	e.logger.Info("match registered",
		slog.String("match_id", match.ID),
		slog.String("game_type", string(match.GameType)))
	e.flush(lm)
	return nil
}

// Ready marks address as ready. The game begins when both sides are ready.
func (e *Engine) Ready(ctx context.Context, address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lm, side, err := e.findByPlayer(address)
	if err != nil {
		return err
	}
	if lm.match.Status != domain.MatchWaiting || lm.match.Players[side].Ready {
		return nil
	}
	e.markReady(ctx, lm, side)
	e.flush(lm)
	return nil
}

// markReady flags one side ready and starts the game when both are. Caller
// holds e.mu.
func (e *Engine) markReady(ctx context.Context, lm *liveMatch, side int) {
	lm.match.Players[side].Ready = true
	lm.emit(lm.match.Opponent(lm.match.Players[side].Address), domain.EventPlayerReady, map[string]any{
		"address": lm.match.Players[side].Address,
	})
	if lm.match.Players[0].Ready && lm.match.Players[1].Ready {
		e.beginGame(ctx, lm)
	}
}

// beginGame transitions the match to ACTIVE and initializes the rule state.
// Caller holds e.mu.
func (e *Engine) beginGame(ctx context.Context, lm *liveMatch) {
	now := e.clock()
	lm.match.Status = domain.MatchActive
	lm.match.StartedAt = now

	switch lm.match.GameType {
	case domain.GameReactionRace:
		e.reactionInit(lm, now)
		lm.deadline = now.Add(e.cfg.Reaction.Duration)
	case domain.GameMemoryMatch:
		e.memoryInit(lm, now)
		lm.deadline = now.Add(e.cfg.Memory.Duration)
	case domain.GameQuickMath:
		e.mathInit(lm, now)
		lm.deadline = now.Add(e.cfg.Math.Duration)
	case domain.GamePatternTap:
		e.patternInit(lm, now)
		lm.deadline = now.Add(e.cfg.Pattern.Duration)
	}

	e.logger.Info("match started",
		slog.String("match_id", lm.match.ID),
		slog.String("game_type", string(lm.match.GameType)))
	lm.emitBoth(domain.EventGameStart, e.snapshot(lm))
}

// HandleAction applies a player input to their running match. Inputs for an
// unknown player or match fail; inputs that are merely stale (wrong phase,
// already-closed round, superseded problem index) are dropped without error.
func (e *Engine) HandleAction(ctx context.Context, address string, action domain.GameAction) error {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	lm, side, err := e.findByPlayer(address)
	if err != nil {
		return err
	}
	if lm.match.Status != domain.MatchActive {
		return nil
	}

	changed := false
	switch data := lm.data.(type) {
	case *domain.ReactionData:
		a, ok := action.(domain.ReactionTapAction)
		if ok {
			changed = e.reactionHandle(lm, data, side, a, now)
		}
	case *domain.MemoryData:
		a, ok := action.(domain.MemoryFlipAction)
		if ok {
			changed = e.memoryHandle(lm, data, side, a, now)
		}
	case *domain.MathData:
		a, ok := action.(domain.MathAnswerAction)
		if ok {
			changed = e.mathHandle(lm, data, side, a, now)
		}
	case *domain.PatternData:
		a, ok := action.(domain.PatternTapAction)
		if ok {
			changed = e.patternHandle(lm, data, side, a, now)
		}
	}

	if changed {
		if e.ruleFinished(lm) {
			e.settle(ctx, lm, reasonCompleted)
		} else {
			lm.emitBoth(domain.EventGameStateUpdate, e.snapshot(lm))
		}
	}
	e.flush(lm)
	return nil
}

// Disconnect marks address as disconnected and starts the forfeit grace
// timer. A no-op for players without a live match.
func (e *Engine) Disconnect(ctx context.Context, address string) {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	lm, side, err := e.findByPlayer(address)
	if err != nil {
		return
	}
	if !lm.match.Players[side].Connected {
		return
	}
	lm.match.Players[side].Connected = false
	lm.match.Players[side].DisconnectAt = now
	lm.graceDeadline[side] = now.Add(e.cfg.DisconnectGrace)

	e.logger.Info("player disconnected",
		slog.String("match_id", lm.match.ID),
		slog.String("address", address))
	lm.emit(lm.match.Opponent(address), domain.EventOpponentDisconnected, map[string]any{
		"address":     address,
		"graceMillis": e.cfg.DisconnectGrace.Milliseconds(),
	})
	e.flush(lm)
}

// Reconnect rebinds a disconnected player and replays the current state to
// them. Returns ErrMatchNotFound when there is nothing to rejoin.
func (e *Engine) Reconnect(ctx context.Context, address string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lm, side, err := e.findByPlayer(address)
	if err != nil {
		return err
	}
	if lm.match.Players[side].Connected {
		return nil
	}
	lm.match.Players[side].Connected = true
	lm.match.Players[side].DisconnectAt = time.Time{}
	lm.graceDeadline[side] = time.Time{}

	e.logger.Info("player reconnected",
		slog.String("match_id", lm.match.ID),
		slog.String("address", address))
	lm.emit(lm.match.Opponent(address), domain.EventOpponentReconnected, map[string]any{
		"address": address,
	})
	lm.emit(address, domain.EventGameStateUpdate, e.snapshot(lm))
	e.flush(lm)
	return nil
}

// MatchFor returns the live match for address, if any.
func (e *Engine) MatchFor(address string) (*domain.Match, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lm, _, err := e.findByPlayer(address)
	if err != nil {
		return nil, false
	}
	snapshot := *lm.match
	return &snapshot, true
}

// ActiveCount reports the number of live matches.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.matches)
}

// Tick resolves every deadline that has passed: auto-ready, disconnect
// forfeits, timed rule-engine phase transitions, and the hard game timeout.
// Run calls it on the tick interval; tests call it directly.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, lm := range e.snapshotMatches() {
		switch lm.match.Status {
		case domain.MatchWaiting:
			e.tickWaiting(ctx, lm, now)
		case domain.MatchActive:
			e.tickActive(ctx, lm, now)
		}
		e.flush(lm)
	}
}

// snapshotMatches returns the live matches as a slice so settlement can
// delete from the map mid-iteration. Caller holds e.mu.
func (e *Engine) snapshotMatches() []*liveMatch {
	out := make([]*liveMatch, 0, len(e.matches))
	for _, lm := range e.matches {
		out = append(out, lm)
	}
	return out
}

// tickWaiting auto-readies players whose confirmation deadline passed.
// Caller holds e.mu.
func (e *Engine) tickWaiting(ctx context.Context, lm *liveMatch, now time.Time) {
	for side := range lm.match.Players {
		if lm.match.Status != domain.MatchWaiting {
			return
		}
		if !lm.match.Players[side].Ready && !now.Before(lm.readyDeadline[side]) {
			e.logger.Info("auto ready",
				slog.String("match_id", lm.match.ID),
				slog.String("address", lm.match.Players[side].Address))
			e.markReady(ctx, lm, side)
		}
	}
}

// tickActive resolves disconnect forfeits, rule-engine transitions, and the
// game timeout. Caller holds e.mu.
func (e *Engine) tickActive(ctx context.Context, lm *liveMatch, now time.Time) {
	// Disconnect grace expiry. Both players gone means nobody forfeits in
	// favor of anyone; the match voids as a tie and stakes come back.
	expired := [2]bool{}
	for side := range lm.match.Players {
		if !lm.match.Players[side].Connected && !now.Before(lm.graceDeadline[side]) {
			expired[side] = true
		}
	}
	switch {
	case expired[0] && expired[1]:
		e.settleTie(ctx, lm, reasonForfeit)
		return
	case expired[0]:
		e.settleForfeit(ctx, lm, 1)
		return
	case expired[1]:
		e.settleForfeit(ctx, lm, 0)
		return
	}

	// Hard game timeout.
	if !now.Before(lm.deadline) {
		e.settle(ctx, lm, reasonTimeout)
		return
	}

	// Timed rule transitions.
	changed := false
	switch data := lm.data.(type) {
	case *domain.ReactionData:
		changed = e.reactionTick(lm, data, now)
	case *domain.MemoryData:
		changed = e.memoryTick(lm, data, now)
	case *domain.MathData:
		// Quick Math has no timed transitions; the shared deadline above is
		// its only clock.
	case *domain.PatternData:
		changed = e.patternTick(lm, data, now)
	}
	if changed && e.ruleFinished(lm) {
		e.settle(ctx, lm, reasonCompleted)
		return
	}

	// Every tick pushes the countdown and the public state to both players,
	// whether or not a rule transition happened.
	lm.emitBoth(domain.EventGameStateUpdate, e.snapshot(lm))
}

// ruleFinished reports whether the rule engine reached its natural end.
// Caller holds e.mu.
func (e *Engine) ruleFinished(lm *liveMatch) bool {
	switch data := lm.data.(type) {
	case *domain.ReactionData:
		return data.Phase == domain.PhaseDone
	case *domain.MemoryData:
		return data.PairsFound >= data.TotalPairs
	case *domain.MathData:
		return data.Index >= len(data.Problems)
	case *domain.PatternData:
		// Pattern Tap only ends on the shared timer.
		return false
	}
	return false
}

// settle concludes the match by score: higher score wins, equal scores tie.
// Caller holds e.mu.
func (e *Engine) settle(ctx context.Context, lm *liveMatch, reason string) {
	scoreA := lm.match.Players[0].Score
	scoreB := lm.match.Players[1].Score
	switch {
	case scoreA > scoreB:
		e.settleWinner(ctx, lm, 0, reason)
	case scoreB > scoreA:
		e.settleWinner(ctx, lm, 1, reason)
	default:
		e.settleTie(ctx, lm, reason)
	}
}

// settleForfeit awards the match to side regardless of score. Caller holds
// e.mu.
func (e *Engine) settleForfeit(ctx context.Context, lm *liveMatch, side int) {
	e.settleWinner(ctx, lm, side, reasonForfeit)
}

// settleWinner releases the escrow to the winner and finalizes the match.
// Caller holds e.mu.
func (e *Engine) settleWinner(ctx context.Context, lm *liveMatch, side int, reason string) {
	winner := lm.match.Players[side].Address
	payout, rake, err := e.ledger.ReleaseEscrow(ctx, lm.match.EscrowID, winner)
	if err != nil {
		e.logger.Error("escrow release failed",
			slog.String("match_id", lm.match.ID),
			slog.String("escrow_id", lm.match.EscrowID),
			slog.String("error", err.Error()))
		e.finalize(ctx, lm, "", 0, 0, reasonAborted)
		return
	}
	e.finalize(ctx, lm, winner, payout, rake, reason)
}

// settleTie refunds both stakes and finalizes the match with no winner.
// Caller holds e.mu.
func (e *Engine) settleTie(ctx context.Context, lm *liveMatch, reason string) {
	if err := e.ledger.RefundEscrow(ctx, lm.match.EscrowID); err != nil {
		e.logger.Error("escrow refund failed",
			slog.String("match_id", lm.match.ID),
			slog.String("escrow_id", lm.match.EscrowID),
			slog.String("error", err.Error()))
		e.finalize(ctx, lm, "", 0, 0, reasonAborted)
		return
	}
	// On a tie each player gets their own stake back.
	e.finalize(ctx, lm, "", lm.match.Stake, 0, reason)
}

// finalize records the result, notifies both players, and removes the match
// from the live set. Settlement has already happened. Caller holds e.mu.
func (e *Engine) finalize(ctx context.Context, lm *liveMatch, winner string, payout, rake domain.Amount, reason string) {
	now := e.clock()
	lm.match.Status = domain.MatchCompleted
	lm.match.CompletedAt = now

	record := domain.MatchRecord{
		MatchID:     lm.match.ID,
		GameType:    lm.match.GameType,
		PlayerA:     lm.match.Players[0].Address,
		PlayerB:     lm.match.Players[1].Address,
		Winner:      winner,
		Stake:       lm.match.Stake,
		Payout:      payout,
		ScoreA:      lm.match.Players[0].Score,
		ScoreB:      lm.match.Players[1].Score,
		CompletedAt: now,
	}
	if err := e.stats.RecordMatch(ctx, record); err != nil {
		e.logger.Error("record match failed",
			slog.String("match_id", lm.match.ID),
			slog.String("error", err.Error()))
	}

	lm.emitBoth(domain.EventGameEnd, map[string]any{
		"winner": winner,
		"reason": reason,
		"payout": payout,
		"rake":   rake,
		"scores": map[string]int{
			lm.match.Players[0].Address: lm.match.Players[0].Score,
			lm.match.Players[1].Address: lm.match.Players[1].Score,
		},
	})

	e.logger.Info("match settled",
		slog.String("match_id", lm.match.ID),
		slog.String("winner", winner),
		slog.String("reason", reason),
		slog.String("payout", payout.String()))

	delete(e.matches, lm.match.ID)
	for i := range lm.match.Players {
		delete(e.byPlayer, lm.match.Players[i].Address)
	}

	if e.onSettled != nil {
		match := *lm.match
		go e.onSettled(context.WithoutCancel(ctx), &match, record)
	}
}

// snapshot builds the client-visible state payload. Hidden server fields
// (answers, face-down symbols, the pattern sequence outside the show phase)
// are stripped.
func (e *Engine) snapshot(lm *liveMatch) map[string]any {
	players := make([]map[string]any, 0, 2)
	for i := range lm.match.Players {
		p := lm.match.Players[i]
		players = append(players, map[string]any{
			"address":   p.Address,
			"ready":     p.Ready,
			"connected": p.Connected,
			"score":     p.Score,
		})
	}
	out := map[string]any{
		"matchId":  lm.match.ID,
		"gameType": lm.match.GameType,
		"status":   lm.match.Status,
		"stake":    lm.match.Stake,
		"players":  players,
	}
	if !lm.deadline.IsZero() {
		out["endsAt"] = lm.deadline.UTC()
		remaining := lm.deadline.Sub(e.clock())
		if remaining < 0 {
			remaining = 0
		}
		out["timeRemaining"] = int64(remaining.Seconds())
	}
	if lm.data != nil {
		out["state"] = e.viewOf(lm.data)
	}
	return out
}

// viewOf sanitizes rule state for the wire.
func (e *Engine) viewOf(data domain.GameData) any {
	switch d := data.(type) {
	case *domain.ReactionData:
		return d
	case *domain.MemoryData:
		return memoryView(d)
	case *domain.MathData:
		return mathView(d)
	case *domain.PatternData:
		return patternView(d)
	}
	return data
}

// findByPlayer resolves the live match and side for address. Caller holds
// e.mu.
func (e *Engine) findByPlayer(address string) (*liveMatch, int, error) {
	matchID, ok := e.byPlayer[address]
	if !ok {
		return nil, 0, domain.ErrMatchNotFound
	}
	lm, ok := e.matches[matchID]
	if !ok {
		return nil, 0, domain.ErrMatchNotFound
	}
	side := lm.match.PlayerIndex(address)
	if side < 0 {
		return nil, 0, domain.ErrMatchNotFound
	}
	return lm, side, nil
}

// flush delivers queued events. Caller holds e.mu; the publisher must not
// block.
func (e *Engine) flush(lm *liveMatch) {
	if e.publisher == nil {
		lm.pending = nil
		return
	}
	for _, pe := range lm.pending {
		if pe.target != "" {
			e.publisher.PublishToPlayer(pe.target, pe.event)
			continue
		}
		for i := range lm.match.Players {
			e.publisher.PublishToPlayer(lm.match.Players[i].Address, pe.event)
		}
	}
	lm.pending = nil
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
