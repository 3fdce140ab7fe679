package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STAKEARENA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STAKEARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setInt64(&cfg.Ledger.RakeBps, "STAKEARENA_LEDGER_RAKE_BPS")
	setInt64(&cfg.Ledger.MinStake, "STAKEARENA_LEDGER_MIN_STAKE")
	setInt64(&cfg.Ledger.MaxStake, "STAKEARENA_LEDGER_MAX_STAKE")
	setInt64(&cfg.Ledger.DevDeposit, "STAKEARENA_LEDGER_DEV_DEPOSIT")
	setBool(&cfg.Ledger.DevFaucet, "STAKEARENA_LEDGER_DEV_FAUCET")

	// ── Matchmaking ──
	setDuration(&cfg.Matchmaking.SweepInterval, "STAKEARENA_MATCHMAKING_SWEEP_INTERVAL")
	setDuration(&cfg.Matchmaking.SearchTimeout, "STAKEARENA_MATCHMAKING_SEARCH_TIMEOUT")
	setInt64(&cfg.Matchmaking.ToleranceBps, "STAKEARENA_MATCHMAKING_TOLERANCE_BPS")
	setInt(&cfg.Matchmaking.FindRateLimit, "STAKEARENA_MATCHMAKING_FIND_RATE_LIMIT")

	// ── Game ──
	setDuration(&cfg.Game.ReadyTimeout, "STAKEARENA_GAME_READY_TIMEOUT")
	setDuration(&cfg.Game.DisconnectGrace, "STAKEARENA_GAME_DISCONNECT_GRACE")
	setDuration(&cfg.Game.TickInterval, "STAKEARENA_GAME_TICK_INTERVAL")
	setDuration(&cfg.Game.Reaction.Duration, "STAKEARENA_GAME_REACTION_DURATION")
	setInt(&cfg.Game.Reaction.Rounds, "STAKEARENA_GAME_REACTION_ROUNDS")
	setDuration(&cfg.Game.Memory.Duration, "STAKEARENA_GAME_MEMORY_DURATION")
	setInt(&cfg.Game.Memory.Pairs, "STAKEARENA_GAME_MEMORY_PAIRS")
	setDuration(&cfg.Game.Math.Duration, "STAKEARENA_GAME_MATH_DURATION")
	setInt(&cfg.Game.Math.Problems, "STAKEARENA_GAME_MATH_PROBLEMS")
	setDuration(&cfg.Game.Pattern.Duration, "STAKEARENA_GAME_PATTERN_DURATION")
	setInt(&cfg.Game.Pattern.StartLength, "STAKEARENA_GAME_PATTERN_START_LENGTH")

	// ── Treasury ──
	setStr(&cfg.Treasury.PrivateKey, "STAKEARENA_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "STAKEARENA_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "STAKEARENA_TREASURY_KEY_PASSWORD")
	setInt(&cfg.Treasury.ChainID, "STAKEARENA_TREASURY_CHAIN_ID")
	setStr(&cfg.Treasury.SessionSecret, "STAKEARENA_TREASURY_SESSION_SECRET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKEARENA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "STAKEARENA_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "STAKEARENA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKEARENA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKEARENA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKEARENA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKEARENA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKEARENA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKEARENA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKEARENA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STAKEARENA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKEARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEARENA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEARENA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEARENA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKEARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEARENA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEARENA_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "STAKEARENA_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "STAKEARENA_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "STAKEARENA_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "STAKEARENA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKEARENA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "STAKEARENA_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.APIRateLimit, "STAKEARENA_SERVER_API_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKEARENA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKEARENA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKEARENA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKEARENA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEARENA_MODE")
	setStr(&cfg.LogLevel, "STAKEARENA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
