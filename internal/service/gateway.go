package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stakearena/internal/domain"
)

// matchFinder is the slice of the matchmaking queue the gateway drives.
type matchFinder interface {
	FindMatch(ctx context.Context, address string, gameType domain.GameType, stake domain.Amount) error
	CancelSearch(ctx context.Context, address string) error
	Remove(address string)
	Searching(address string) bool
	Size() int
}

// gameEngine is the slice of the match engine the gateway drives.
type gameEngine interface {
	Ready(ctx context.Context, address string) error
	HandleAction(ctx context.Context, address string, action domain.GameAction) error
	Disconnect(ctx context.Context, address string)
	Reconnect(ctx context.Context, address string) error
	MatchFor(address string) (*domain.Match, bool)
	ActiveCount() int
}

// accountLedger is the slice of the ledger the gateway needs for session
// bookkeeping and settlement vouchers.
type accountLedger interface {
	Deposit(ctx context.Context, address string, amount domain.Amount) (domain.Account, error)
	Account(ctx context.Context, address string) (domain.Account, error)
}

// voucherSigner signs settlement tuples. Optional; without one the gateway
// stores unsigned vouchers.
type voucherSigner interface {
	SignVoucher(escrowID, winner string, payout int64, nonce uint64) (string, error)
}

// sessionMinter issues and verifies resume tokens.
type sessionMinter interface {
	Issue(address string) string
	Verify(token string) (string, error)
}

// operatorNotifier pushes alerts to operator channels. Optional.
type operatorNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// GatewayConfig holds session-level knobs.
type GatewayConfig struct {
	// DevFaucet credits DevDeposit to empty accounts on first connect.
	DevFaucet  bool
	DevDeposit domain.Amount
	// PresenceTTL is the liveness window for the presence cache. Heartbeats
	// must arrive faster than this.
	PresenceTTL time.Duration
}

// Session is what a freshly authenticated player gets back.
type Session struct {
	Address     string        `json:"address"`
	Balance     domain.Amount `json:"balance"`
	Nonce       uint64        `json:"nonce"`
	ResumeToken string        `json:"resumeToken"`
	MatchID     string        `json:"matchId,omitempty"`
	Reconnected bool          `json:"reconnected"`
}

// Gateway orchestrates a player session: authentication, deposits, queueing,
// match input, and the settlement fan-out. It is the single entry point the
// transport layer talks to.
type Gateway struct {
	cfg       GatewayConfig
	ledger    accountLedger
	queue     matchFinder
	engine    gameEngine
	vouchers  domain.VoucherStore
	sessions  sessionMinter
	presence  domain.PresenceCache
	publisher domain.EventPublisher
	signer    voucherSigner
	notifier  operatorNotifier
	logger    *slog.Logger
}

// NewGateway creates a Gateway. vouchers, presence, signer, and notifier may
// be nil; the corresponding features degrade gracefully.
func NewGateway(
	cfg GatewayConfig,
	ledger accountLedger,
	queue matchFinder,
	engine gameEngine,
	vouchers domain.VoucherStore,
	sessions sessionMinter,
	publisher domain.EventPublisher,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 30 * time.Second
	}
	return &Gateway{
		cfg:       cfg,
		ledger:    ledger,
		queue:     queue,
		engine:    engine,
		vouchers:  vouchers,
		sessions:  sessions,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "gateway")),
	}
}

// WithPresence attaches a presence cache so platform stats can count players
// across processes.
func (g *Gateway) WithPresence(p domain.PresenceCache) *Gateway {
	g.presence = p
	return g
}

// WithSigner attaches a settlement voucher signer.
func (g *Gateway) WithSigner(s voucherSigner) *Gateway {
	g.signer = s
	return g
}

// WithNotifier attaches an operator notifier.
func (g *Gateway) WithNotifier(n operatorNotifier) *Gateway {
	g.notifier = n
	return g
}

// Connect authenticates an address and opens a session. When the player has a
// live match, the session reports it and the engine replays the current game
// state; when the dev faucet is on, empty accounts get a starter balance.
func (g *Gateway) Connect(ctx context.Context, address string) (Session, error) {
	if address == "" {
		return Session{}, fmt.Errorf("gateway: connect: %w", domain.ErrUnauthorized)
	}

	account, err := g.ledger.Account(ctx, address)
	if err != nil {
		return Session{}, fmt.Errorf("gateway: connect %s: %w", address, err)
	}

	if g.cfg.DevFaucet && account.Balance == 0 && g.cfg.DevDeposit > 0 {
		account, err = g.ledger.Deposit(ctx, address, g.cfg.DevDeposit)
		if err != nil {
			return Session{}, fmt.Errorf("gateway: faucet %s: %w", address, err)
		}
		g.logger.InfoContext(ctx, "faucet credit",
			slog.String("address", account.Address),
			slog.Int64("amount", int64(g.cfg.DevDeposit)),
		)
	}

	sess := Session{
		Address: account.Address,
		Balance: account.Balance,
		Nonce:   account.Nonce,
	}
	if g.sessions != nil {
		sess.ResumeToken = g.sessions.Issue(account.Address)
	}

	if match, ok := g.engine.MatchFor(account.Address); ok {
		sess.MatchID = match.ID
		sess.Reconnected = true
		if err := g.engine.Reconnect(ctx, account.Address); err != nil &&
			!errors.Is(err, domain.ErrMatchNotFound) {
			g.logger.WarnContext(ctx, "reconnect failed",
				slog.String("address", account.Address),
				slog.String("error", err.Error()),
			)
		}
	}

	g.heartbeat(ctx, account.Address)
	return sess, nil
}

// Resume verifies a resume token and opens a session for its address.
func (g *Gateway) Resume(ctx context.Context, token string) (Session, error) {
	if g.sessions == nil {
		return Session{}, errors.New("gateway: resume not configured")
	}
	address, err := g.sessions.Verify(token)
	if err != nil {
		return Session{}, fmt.Errorf("gateway: resume: %w", err)
	}
	return g.Connect(ctx, address)
}

// Deposit credits a player's balance and pushes the updated balance.
func (g *Gateway) Deposit(ctx context.Context, address string, amount domain.Amount) (domain.Account, error) {
	account, err := g.ledger.Deposit(ctx, address, amount)
	if err != nil {
		return domain.Account{}, err
	}
	g.pushBalance(account)
	return account, nil
}

// FindMatch enqueues the player for matchmaking.
func (g *Gateway) FindMatch(ctx context.Context, address string, gameType domain.GameType, stake domain.Amount) error {
	return g.queue.FindMatch(ctx, address, gameType, stake)
}

// CancelSearch removes the player from the matchmaking queue.
func (g *Gateway) CancelSearch(ctx context.Context, address string) error {
	return g.queue.CancelSearch(ctx, address)
}

// Ready acknowledges the match-found handshake.
func (g *Gateway) Ready(ctx context.Context, address string) error {
	return g.engine.Ready(ctx, address)
}

// GameAction decodes and applies a player input to their live match.
func (g *Gateway) GameAction(ctx context.Context, address, actionType string, payload json.RawMessage) error {
	action, err := domain.DecodeGameAction(actionType, payload)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return g.engine.HandleAction(ctx, address, action)
}

// Heartbeat refreshes the player's presence liveness window.
func (g *Gateway) Heartbeat(ctx context.Context, address string) {
	g.heartbeat(ctx, address)
}

// Disconnect tears down a session: the player leaves the queue, any live
// match enters its grace window, and presence is cleared.
func (g *Gateway) Disconnect(ctx context.Context, address string) {
	g.queue.Remove(address)
	g.engine.Disconnect(ctx, address)

	if g.presence != nil {
		if err := g.presence.Remove(ctx, address); err != nil {
			g.logger.WarnContext(ctx, "presence remove failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Stats returns the live platform counters. Without a presence cache the
// online count falls back to zero rather than failing the whole snapshot.
func (g *Gateway) Stats(ctx context.Context) domain.PlatformStats {
	st := domain.PlatformStats{
		SearchingPlayers: g.queue.Size(),
		ActiveMatches:    g.engine.ActiveCount(),
	}
	if g.presence != nil {
		n, err := g.presence.OnlineCount(ctx)
		if err != nil {
			g.logger.WarnContext(ctx, "presence count failed",
				slog.String("error", err.Error()),
			)
		} else {
			st.OnlinePlayers = n
		}
	}
	return st
}

// HandleSettled is the engine's post-settlement hook. It signs and stores the
// settlement voucher, pushes fresh balances to both players, and alerts
// operators. Runs on its own goroutine after the match already finalized, so
// every failure here is logged and absorbed.
func (g *Gateway) HandleSettled(ctx context.Context, match *domain.Match, record domain.MatchRecord) {
	g.pushBalanceFor(ctx, record.PlayerA)
	g.pushBalanceFor(ctx, record.PlayerB)

	if record.Winner != "" {
		if err := g.storeVoucher(ctx, match, record); err != nil {
			g.logger.ErrorContext(ctx, "voucher failed",
				slog.String("match_id", record.MatchID),
				slog.String("error", err.Error()),
			)
			g.notify(ctx, "settlement_failed", "Settlement voucher failed",
				fmt.Sprintf("match %s: %v", record.MatchID, err))
			return
		}
	}

	g.notify(ctx, "match_settled", "Match settled",
		fmt.Sprintf("match %s (%s) winner=%s payout=%s",
			record.MatchID, record.GameType, orTie(record.Winner), record.Payout))
}

func (g *Gateway) storeVoucher(ctx context.Context, match *domain.Match, record domain.MatchRecord) error {
	if g.vouchers == nil {
		return nil
	}

	winner, err := g.ledger.Account(ctx, record.Winner)
	if err != nil {
		return fmt.Errorf("load winner account: %w", err)
	}

	voucher := domain.SettlementVoucher{
		EscrowID: match.EscrowID,
		Winner:   winner.Address,
		Payout:   record.Payout,
		Rake:     record.Stake*2 - record.Payout,
		Nonce:    winner.Nonce,
		SignedAt: time.Now().UTC(),
	}

	if g.signer != nil {
		sig, err := g.signer.SignVoucher(voucher.EscrowID, voucher.Winner, int64(voucher.Payout), voucher.Nonce)
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}
		voucher.Signature = sig
	}

	if err := g.vouchers.Put(ctx, voucher); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func (g *Gateway) pushBalanceFor(ctx context.Context, address string) {
	account, err := g.ledger.Account(ctx, address)
	if err != nil {
		g.logger.WarnContext(ctx, "balance push failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		return
	}
	g.pushBalance(account)
}

func (g *Gateway) pushBalance(account domain.Account) {
	if g.publisher == nil {
		return
	}
	ev, err := domain.NewEvent(domain.EventBalanceUpdate, map[string]any{
		"balance": account.Balance,
		"nonce":   account.Nonce,
	})
	if err != nil {
		return
	}
	g.publisher.PublishToPlayer(account.Address, ev)
}

func (g *Gateway) heartbeat(ctx context.Context, address string) {
	if g.presence == nil {
		return
	}
	if err := g.presence.Heartbeat(ctx, address, g.cfg.PresenceTTL); err != nil {
		g.logger.WarnContext(ctx, "presence heartbeat failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Gateway) notify(ctx context.Context, event, title, message string) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, event, title, message); err != nil {
		g.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func orTie(winner string) string {
	if winner == "" {
		return "tie"
	}
	return winner
}
