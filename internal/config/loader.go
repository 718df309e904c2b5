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
// built-in defaults, applies PUMPFIGHT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus environment. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads PUMPFIGHT_* environment variables and overwrites the
// matching Config fields when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PUMPFIGHT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PUMPFIGHT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PUMPFIGHT_WALLET_KEY_PASSWORD")

	// ── Launchpad ──
	setStr(&cfg.Launchpad.FactoryAddress, "PUMPFIGHT_LAUNCHPAD_FACTORY_ADDRESS")
	setStr(&cfg.Launchpad.OperatorAddress, "PUMPFIGHT_LAUNCHPAD_OPERATOR_ADDRESS")
	setStr(&cfg.Launchpad.TreasuryAddress, "PUMPFIGHT_LAUNCHPAD_TREASURY_ADDRESS")
	setStr(&cfg.Launchpad.CreationFee, "PUMPFIGHT_LAUNCHPAD_CREATION_FEE")
	setStr(&cfg.Launchpad.CurveKind, "PUMPFIGHT_LAUNCHPAD_CURVE_KIND")
	setStr(&cfg.Launchpad.InitialPrice, "PUMPFIGHT_LAUNCHPAD_INITIAL_PRICE")
	setUint64(&cfg.Launchpad.StepMultiplier, "PUMPFIGHT_LAUNCHPAD_STEP_MULTIPLIER")
	setStr(&cfg.Launchpad.PriceIncrement, "PUMPFIGHT_LAUNCHPAD_PRICE_INCREMENT")
	setStr(&cfg.Launchpad.StepSize, "PUMPFIGHT_LAUNCHPAD_STEP_SIZE")
	setStr(&cfg.Launchpad.GraduationTarget, "PUMPFIGHT_LAUNCHPAD_GRADUATION_TARGET")
	setStr(&cfg.Launchpad.MaxSupply, "PUMPFIGHT_LAUNCHPAD_MAX_SUPPLY")
	setUint64(&cfg.Launchpad.CreatorShareBps, "PUMPFIGHT_LAUNCHPAD_CREATOR_SHARE_BPS")
	setUint64(&cfg.Launchpad.PlatformFeeBps, "PUMPFIGHT_LAUNCHPAD_PLATFORM_FEE_BPS")
	setDuration(&cfg.Launchpad.SellCooldown, "PUMPFIGHT_LAUNCHPAD_SELL_COOLDOWN")
	setUint64(&cfg.Launchpad.MaxSellBps, "PUMPFIGHT_LAUNCHPAD_MAX_SELL_BPS")
	setDuration(&cfg.Launchpad.LockTTL, "PUMPFIGHT_LAUNCHPAD_LOCK_TTL")
	setDuration(&cfg.Launchpad.IdempotencyTTL, "PUMPFIGHT_LAUNCHPAD_IDEMPOTENCY_TTL")
	setBool(&cfg.Launchpad.ResyncOnStart, "PUMPFIGHT_LAUNCHPAD_RESYNC_ON_START")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "PUMPFIGHT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "PUMPFIGHT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "PUMPFIGHT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "PUMPFIGHT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "PUMPFIGHT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "PUMPFIGHT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "PUMPFIGHT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "PUMPFIGHT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "PUMPFIGHT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "PUMPFIGHT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "PUMPFIGHT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PUMPFIGHT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PUMPFIGHT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PUMPFIGHT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PUMPFIGHT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PUMPFIGHT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PUMPFIGHT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PUMPFIGHT_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLMinutes, "PUMPFIGHT_REDIS_CACHE_TTL_MINUTES")
	setInt(&cfg.Redis.StreamMaxLen, "PUMPFIGHT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PUMPFIGHT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PUMPFIGHT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PUMPFIGHT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PUMPFIGHT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PUMPFIGHT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PUMPFIGHT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PUMPFIGHT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PUMPFIGHT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PUMPFIGHT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PUMPFIGHT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.OperatorAPIKey, "PUMPFIGHT_SERVER_OPERATOR_API_KEY")
	setBool(&cfg.Server.RequireSignatures, "PUMPFIGHT_SERVER_REQUIRE_SIGNATURES")
	setInt(&cfg.Server.RateLimitPerMinute, "PUMPFIGHT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PUMPFIGHT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PUMPFIGHT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PUMPFIGHT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "PUMPFIGHT_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookSecret, "PUMPFIGHT_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "PUMPFIGHT_NOTIFY_EVENTS")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "PUMPFIGHT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PUMPFIGHT_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "PUMPFIGHT_MODE")
	setStr(&cfg.Storage, "PUMPFIGHT_STORAGE")
	setStr(&cfg.LogLevel, "PUMPFIGHT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
