// Package config defines the top-level configuration for the stakearena
// server and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STAKEARENA_* environment variables.
type Config struct {
	Ledger      LedgerConfig      `toml:"ledger"`
	Matchmaking MatchmakingConfig `toml:"matchmaking"`
	Game        GameConfig        `toml:"game"`
	Treasury    TreasuryConfig    `toml:"treasury"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Archive     ArchiveConfig     `toml:"archive"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// LedgerConfig holds balance and escrow parameters. Amounts are micro-units.
type LedgerConfig struct {
	RakeBps    int64 `toml:"rake_bps"`
	MinStake   int64 `toml:"min_stake"`
	MaxStake   int64 `toml:"max_stake"`
	DevDeposit int64 `toml:"dev_deposit"`
	DevFaucet  bool  `toml:"dev_faucet"`
}

// MatchmakingConfig holds queue pairing parameters.
type MatchmakingConfig struct {
	SweepInterval duration `toml:"sweep_interval"`
	SearchTimeout duration `toml:"search_timeout"`
	// ToleranceBps is the maximum relative stake difference for pairing,
	// in basis points of the larger stake (1000 = 10%).
	ToleranceBps int64 `toml:"tolerance_bps"`
	// FindRateLimit caps findMatch calls per player per minute.
	FindRateLimit int `toml:"find_rate_limit"`
}

// GameConfig holds orchestrator and per-game timing parameters. Every timer
// is configurable so deployments (and tests) can tune pacing.
type GameConfig struct {
	ReadyTimeout    duration `toml:"ready_timeout"`
	DisconnectGrace duration `toml:"disconnect_grace"`
	TickInterval    duration `toml:"tick_interval"`

	Reaction ReactionConfig `toml:"reaction"`
	Memory   MemoryConfig   `toml:"memory"`
	Math     MathConfig     `toml:"math"`
	Pattern  PatternConfig  `toml:"pattern"`
}

// ReactionConfig parameterizes Reaction Race.
type ReactionConfig struct {
	Duration   duration `toml:"duration"`
	Rounds     int      `toml:"rounds"`
	MinDelay   duration `toml:"min_delay"`
	ExtraDelay duration `toml:"extra_delay"`
	RoundPause duration `toml:"round_pause"`
}

// MemoryConfig parameterizes Memory Match.
type MemoryConfig struct {
	Duration  duration `toml:"duration"`
	Pairs     int      `toml:"pairs"`
	HideDelay duration `toml:"hide_delay"`
}

// MathConfig parameterizes Quick Math.
type MathConfig struct {
	Duration duration `toml:"duration"`
	Problems int      `toml:"problems"`
}

// PatternConfig parameterizes Pattern Tap.
type PatternConfig struct {
	Duration    duration `toml:"duration"`
	StartLength int      `toml:"start_length"`
	ShowBase    duration `toml:"show_base"`
	ShowPerStep duration `toml:"show_per_step"`
	ReshowDelay duration `toml:"reshow_delay"`
}

// TreasuryConfig holds the settlement voucher signing key.
type TreasuryConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ChainID          int    `toml:"chain_id"`
	SessionSecret    string `toml:"session_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds match-history archival parameters. When Cron is set it
// takes precedence over Interval.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Cron          string   `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AdminAPIKey string   `toml:"admin_api_key"`
	// APIRateLimit caps REST requests per client IP per second.
	APIRateLimit int `toml:"api_rate_limit"`
}

// NotifyConfig holds operator notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the production pacing values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			RakeBps:    300,
			MinStake:   1_000_000,
			MaxStake:   100_000_000,
			DevDeposit: 100_000_000,
			DevFaucet:  false,
		},
		Matchmaking: MatchmakingConfig{
			SweepInterval: duration{1 * time.Second},
			SearchTimeout: duration{60 * time.Second},
			ToleranceBps:  1000,
			FindRateLimit: 30,
		},
		Game: GameConfig{
			ReadyTimeout:    duration{10 * time.Second},
			DisconnectGrace: duration{10 * time.Second},
			TickInterval:    duration{1 * time.Second},
			Reaction: ReactionConfig{
				Duration:   duration{30 * time.Second},
				Rounds:     5,
				MinDelay:   duration{2 * time.Second},
				ExtraDelay: duration{3 * time.Second},
				RoundPause: duration{1500 * time.Millisecond},
			},
			Memory: MemoryConfig{
				Duration:  duration{60 * time.Second},
				Pairs:     8,
				HideDelay: duration{1 * time.Second},
			},
			Math: MathConfig{
				Duration: duration{45 * time.Second},
				Problems: 10,
			},
			Pattern: PatternConfig{
				Duration:    duration{60 * time.Second},
				StartLength: 3,
				ShowBase:    duration{500 * time.Millisecond},
				ShowPerStep: duration{500 * time.Millisecond},
				ReshowDelay: duration{1 * time.Second},
			},
		},
		Treasury: TreasuryConfig{
			ChainID: 137,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "stakearena",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stakearena-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			APIRateLimit: 20,
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_failed", "escrow_failed", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.RakeBps < 0 || c.Ledger.RakeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("ledger: rake_bps must be in [0, 10000), got %d", c.Ledger.RakeBps))
	}
	if c.Ledger.MinStake <= 0 {
		errs = append(errs, "ledger: min_stake must be > 0")
	}
	if c.Ledger.MaxStake < c.Ledger.MinStake {
		errs = append(errs, "ledger: max_stake must be >= min_stake")
	}

	// Matchmaking
	if c.Matchmaking.SweepInterval.Duration <= 0 {
		errs = append(errs, "matchmaking: sweep_interval must be > 0")
	}
	if c.Matchmaking.SearchTimeout.Duration <= 0 {
		errs = append(errs, "matchmaking: search_timeout must be > 0")
	}
	if c.Matchmaking.ToleranceBps < 0 || c.Matchmaking.ToleranceBps > 10_000 {
		errs = append(errs, fmt.Sprintf("matchmaking: tolerance_bps must be in [0, 10000], got %d", c.Matchmaking.ToleranceBps))
	}

	// Game
	if c.Game.ReadyTimeout.Duration <= 0 {
		errs = append(errs, "game: ready_timeout must be > 0")
	}
	if c.Game.DisconnectGrace.Duration <= 0 {
		errs = append(errs, "game: disconnect_grace must be > 0")
	}
	if c.Game.TickInterval.Duration <= 0 {
		errs = append(errs, "game: tick_interval must be > 0")
	}
	if c.Game.Reaction.Rounds < 1 {
		errs = append(errs, "game: reaction.rounds must be >= 1")
	}
	if c.Game.Memory.Pairs < 2 || c.Game.Memory.Pairs > 32 {
		errs = append(errs, fmt.Sprintf("game: memory.pairs must be 2-32, got %d", c.Game.Memory.Pairs))
	}
	if c.Game.Math.Problems < 1 {
		errs = append(errs, "game: math.problems must be >= 1")
	}
	if c.Game.Pattern.StartLength < 1 {
		errs = append(errs, "game: pattern.start_length must be >= 1")
	}

	// Treasury. Signing is optional, but an encrypted key needs a password.
	if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
		errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
	}
	if c.Treasury.ChainID <= 0 {
		errs = append(errs, "treasury: chain_id must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3, only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Cron == "" && c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0 (or set archive.cron)")
		}
		if c.Archive.Cron != "" && len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
