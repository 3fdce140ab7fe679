package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stakearena/internal/crypto"
	"github.com/alanyoungcy/stakearena/internal/domain"
	"github.com/alanyoungcy/stakearena/internal/game"
	"github.com/alanyoungcy/stakearena/internal/ledger"
	"github.com/alanyoungcy/stakearena/internal/matchmaking"
	"github.com/alanyoungcy/stakearena/internal/pipeline"
	"github.com/alanyoungcy/stakearena/internal/server"
	"github.com/alanyoungcy/stakearena/internal/server/handler"
	"github.com/alanyoungcy/stakearena/internal/server/middleware"
	"github.com/alanyoungcy/stakearena/internal/server/ws"
	"github.com/alanyoungcy/stakearena/internal/service"
	"github.com/alanyoungcy/stakearena/internal/stats"
)

// sessionTokenTTL is the lifetime of resume tokens handed out on connect.
const sessionTokenTTL = 24 * time.Hour

// services is the assembled domain service graph shared by the run modes.
type services struct {
	ledger  *ledger.Service
	stats   *stats.Service
	queue   *matchmaking.Queue
	engine  *game.Engine
	gateway *service.Gateway
	hub     *ws.Hub
}

// ServeMode runs the gameplay server: matchmaking, match orchestration, the
// session hub, and the HTTP/WebSocket surface.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g.Go(func() error { return svcs.queue.Run(ctx) })
	g.Go(func() error { return svcs.engine.Run(ctx) })
	g.Go(func() error { return svcs.hub.Run(ctx) })

	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// MonitorMode runs the read-only REST surface: leaderboard, player stats, and
// platform counters. No matches are started and no sockets are accepted.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	svcs.hub = nil

	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// FullMode runs everything serve mode runs plus the match archival worker.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g.Go(func() error { return svcs.queue.Run(ctx) })
	g.Go(func() error { return svcs.engine.Run(ctx) })
	g.Go(func() error { return svcs.hub.Run(ctx) })

	var archiveTrigger chan struct{}
	if deps.Archiver != nil {
		archiveTrigger = make(chan struct{}, 1)
		arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).
			WithLock(deps.Locks)
		if cron := a.cfg.Archive.Cron; cron != "" {
			g.Go(func() error { return arch.RunCron(ctx, cron) })
		} else {
			interval := a.cfg.Archive.Interval.Duration
			g.Go(func() error { return arch.RunLoop(ctx, interval, archiveTrigger) })
		}
	} else {
		a.logger.WarnContext(ctx, "full mode: archive.enabled is false, archival worker skipped")
	}

	a.startHTTPServer(ctx, g, deps, svcs, archiveTrigger)

	return g.Wait()
}

// buildServices assembles the ledger, stats, matchmaking, game, and gateway
// services on top of the wired dependencies.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	cfg := a.cfg

	ledgerSvc := ledger.New(deps.Accounts, deps.Escrows, deps.Audit, cfg.Ledger.RakeBps, a.logger)
	statsSvc := stats.New(deps.Stats, deps.Records, a.logger)

	// The hub publishes player events; services are built against it and the
	// gateway is attached to it last.
	hub := ws.NewHub(deps.SignalBus, a.logger)

	engine := game.New(game.Config{
		ReadyTimeout:    cfg.Game.ReadyTimeout.Duration,
		DisconnectGrace: cfg.Game.DisconnectGrace.Duration,
		TickInterval:    cfg.Game.TickInterval.Duration,
		Reaction: game.ReactionConfig{
			Duration:   cfg.Game.Reaction.Duration.Duration,
			Rounds:     cfg.Game.Reaction.Rounds,
			MinDelay:   cfg.Game.Reaction.MinDelay.Duration,
			ExtraDelay: cfg.Game.Reaction.ExtraDelay.Duration,
			RoundPause: cfg.Game.Reaction.RoundPause.Duration,
		},
		Memory: game.MemoryConfig{
			Duration:  cfg.Game.Memory.Duration.Duration,
			Pairs:     cfg.Game.Memory.Pairs,
			HideDelay: cfg.Game.Memory.HideDelay.Duration,
		},
		Math: game.MathConfig{
			Duration: cfg.Game.Math.Duration.Duration,
			Problems: cfg.Game.Math.Problems,
		},
		Pattern: game.PatternConfig{
			Duration:    cfg.Game.Pattern.Duration.Duration,
			StartLength: cfg.Game.Pattern.StartLength,
			ShowBase:    cfg.Game.Pattern.ShowBase.Duration,
			ShowPerStep: cfg.Game.Pattern.ShowPerStep.Duration,
			ReshowDelay: cfg.Game.Pattern.ReshowDelay.Duration,
		},
	}, ledgerSvc, statsSvc, hub, a.logger)

	queue := matchmaking.New(matchmaking.Config{
		SweepInterval: cfg.Matchmaking.SweepInterval.Duration,
		SearchTimeout: cfg.Matchmaking.SearchTimeout.Duration,
		ToleranceBps:  cfg.Matchmaking.ToleranceBps,
		MinStake:      domain.Amount(cfg.Ledger.MinStake),
		MaxStake:      domain.Amount(cfg.Ledger.MaxStake),
		FindRateLimit: cfg.Matchmaking.FindRateLimit,
	}, ledgerSvc, engine, hub, deps.RateLimiter, a.logger)

	sessions, err := a.buildSessionAuth(ctx)
	if err != nil {
		return nil, err
	}

	gateway := service.NewGateway(service.GatewayConfig{
		DevFaucet:  cfg.Ledger.DevFaucet,
		DevDeposit: domain.Amount(cfg.Ledger.DevDeposit),
	}, ledgerSvc, queue, engine, deps.Vouchers, sessions, hub, a.logger).
		WithPresence(deps.Presence).
		WithNotifier(deps.Notifier)

	if signer := a.buildVoucherSigner(ctx); signer != nil {
		gateway.WithSigner(signer)
	}

	engine.SetOnSettled(gateway.HandleSettled)
	hub.SetGateway(gateway)

	return &services{
		ledger:  ledgerSvc,
		stats:   statsSvc,
		queue:   queue,
		engine:  engine,
		gateway: gateway,
		hub:     hub,
	}, nil
}

// buildSessionAuth creates the resume-token minter. Without a configured
// secret an ephemeral one is generated, so tokens do not survive a restart.
func (a *App) buildSessionAuth(ctx context.Context) (*crypto.SessionAuth, error) {
	secret := a.cfg.Treasury.SessionSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		a.logger.WarnContext(ctx, "treasury.session_secret not set, using ephemeral secret; resume tokens will not survive restarts")
	}

	sessions, err := crypto.NewSessionAuth(secret, sessionTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("session auth: %w", err)
	}
	return sessions, nil
}

// buildVoucherSigner loads the treasury key and returns a signer, or nil when
// no key is configured. Settlement still works without one; vouchers are just
// stored unsigned.
func (a *App) buildVoucherSigner(ctx context.Context) *crypto.VoucherSigner {
	t := a.cfg.Treasury
	if t.PrivateKey == "" && t.EncryptedKeyPath == "" {
		a.logger.InfoContext(ctx, "no treasury key configured, settlement vouchers will be unsigned")
		return nil
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    t.PrivateKey,
		EncryptedKeyPath: t.EncryptedKeyPath,
		KeyPassword:      t.KeyPassword,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "treasury key load failed, settlement vouchers will be unsigned",
			slog.String("error", err.Error()),
		)
		return nil
	}

	signer, err := crypto.NewVoucherSigner(keyHex, t.ChainID)
	if err != nil {
		a.logger.WarnContext(ctx, "treasury signer init failed, settlement vouchers will be unsigned",
			slog.String("error", err.Error()),
		)
		return nil
	}

	a.logger.InfoContext(ctx, "treasury signer ready",
		slog.String("address", signer.Address().Hex()),
		slog.Int("chain_id", t.ChainID),
	)
	return signer
}

// startHTTPServer adds the HTTP server and its graceful shutdown to the
// errgroup. archiveTrigger is optional; when non-nil, POST
// /api/admin/archive/trigger requests one archive run.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	archiveTrigger chan<- struct{},
) {
	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svcs.stats, deps.Leaderboard, a.logger),
		Players:     handler.NewPlayerHandler(svcs.stats, svcs.ledger, a.logger),
		Platform:    handler.NewPlatformHandler(svcs.gateway),
		Vouchers:    handler.NewVoucherHandler(deps.Vouchers, a.logger),
	}
	if archiveTrigger != nil {
		handlers.Archive = handler.NewArchiveHandler(a.logger).WithTriggerChannel(archiveTrigger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Server.AdminAPIKey,
	}, handlers, svcs.hub, a.logger)

	if a.cfg.Server.APIRateLimit > 0 {
		srv.WithRateLimit(middleware.RateLimit(deps.RateLimiter, a.cfg.Server.APIRateLimit, time.Second))
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
