// Package config defines the top-level configuration for the pumpfight
// launchpad service and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PUMPFIGHT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Launchpad LaunchpadConfig `toml:"launchpad"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	Storage   string          `toml:"storage"` // "postgres" or "memory"
	LogLevel  string          `toml:"log_level"`
}

// UsesPostgres reports whether the command log and side tables live in
// PostgreSQL rather than in process memory.
func (c *Config) UsesPostgres() bool {
	return strings.ToLower(c.Storage) != "memory"
}

// WalletConfig holds the operator key used to sign event receipts. It is
// optional; without it events are stored unsigned.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether any operator key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// LaunchpadConfig holds the factory identity and the default curve applied
// to every new token. Amounts are decimal CHZ or token strings.
type LaunchpadConfig struct {
	FactoryAddress   string   `toml:"factory_address"`
	OperatorAddress  string   `toml:"operator_address"`
	TreasuryAddress  string   `toml:"treasury_address"`
	CreationFee      string   `toml:"creation_fee"`
	CurveKind        string   `toml:"curve_kind"`
	InitialPrice     string   `toml:"initial_price"`
	StepMultiplier   uint64   `toml:"step_multiplier"`
	PriceIncrement   string   `toml:"price_increment"`
	StepSize         string   `toml:"step_size"`
	GraduationTarget string   `toml:"graduation_target"`
	MaxSupply        string   `toml:"max_supply"`
	CreatorShareBps  uint64   `toml:"creator_share_bps"`
	PlatformFeeBps   uint64   `toml:"platform_fee_bps"`
	SellCooldown     duration `toml:"sell_cooldown"`
	MaxSellBps       uint64   `toml:"max_sell_bps"`
	LockTTL          duration `toml:"lock_ttl"`
	IdempotencyTTL   duration `toml:"idempotency_ttl"`
	ResyncOnStart    bool     `toml:"resync_on_start"`
}

// TokenDefaults converts the decimal settings into the engine's fixed-point
// token config.
func (l LaunchpadConfig) TokenDefaults() (domain.TokenConfig, error) {
	parse := func(name, v string) (*big.Int, error) {
		n, err := fixed.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("launchpad: %s: %w", name, err)
		}
		return n, nil
	}

	initial, err := parse("initial_price", l.InitialPrice)
	if err != nil {
		return domain.TokenConfig{}, err
	}
	step, err := parse("step_size", l.StepSize)
	if err != nil {
		return domain.TokenConfig{}, err
	}
	target, err := parse("graduation_target", l.GraduationTarget)
	if err != nil {
		return domain.TokenConfig{}, err
	}
	maxSupply, err := parse("max_supply", l.MaxSupply)
	if err != nil {
		return domain.TokenConfig{}, err
	}

	cfg := domain.TokenConfig{
		InitialPrice:     initial,
		StepSize:         step,
		GraduationTarget: target,
		MaxSupply:        maxSupply,
		CreatorShareBps:  l.CreatorShareBps,
		PlatformFeeBps:   l.PlatformFeeBps,
		AntiRug: domain.AntiRugConfig{
			SellCooldown: l.SellCooldown.Duration,
			MaxSellBps:   l.MaxSellBps,
		},
	}
	switch domain.CurveKind(strings.ToLower(l.CurveKind)) {
	case domain.CurveAdditive:
		inc, err := parse("price_increment", l.PriceIncrement)
		if err != nil {
			return domain.TokenConfig{}, err
		}
		cfg.Rule = domain.Additive(inc)
	default:
		cfg.Rule = domain.Multiplicative(l.StepMultiplier)
	}
	return cfg, nil
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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
	Enabled         bool   `toml:"enabled"`
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	StreamMaxLen    int    `toml:"stream_max_len"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	OperatorAPIKey     string   `toml:"operator_api_key"`
	RequireSignatures  bool     `toml:"require_signatures"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// ArchiveConfig controls moving old events to object storage.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Launchpad: LaunchpadConfig{
			FactoryAddress:   "0x00000000000000000000000000000000000f1647",
			CreationFee:      "100",
			CurveKind:        string(domain.CurveMultiplicative),
			InitialPrice:     "0.0005",
			StepMultiplier:   2,
			PriceIncrement:   "0.0001",
			StepSize:         "50000",
			GraduationTarget: "300000",
			MaxSupply:        "10000000",
			CreatorShareBps:  500,
			PlatformFeeBps:   250,
			SellCooldown:     duration{time.Hour},
			MaxSellBps:       1000,
			LockTTL:          duration{10 * time.Second},
			IdempotencyTTL:   duration{10 * time.Minute},
			ResyncOnStart:    false,
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:         true,
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLMinutes: 60,
			StreamMaxLen:    10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pumpfight-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"token_created", "curve_graduated", "vote_created"},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "serve",
		Storage:  "postgres",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"replay":  true,
	"archive": true,
}

// validStorage enumerates the accepted values for Config.Storage.
var validStorage = map[string]bool{
	"postgres": true,
	"memory":   true,
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
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, replay, archive)", c.Mode))
	}
	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}
	if strings.ToLower(c.Mode) == "archive" && !c.UsesPostgres() {
		errs = append(errs, `archive mode requires storage "postgres"`)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Launchpad
	for name, addr := range map[string]string{
		"factory_address":  c.Launchpad.FactoryAddress,
		"treasury_address": c.Launchpad.TreasuryAddress,
	} {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("launchpad: %s %q is not a hex address", name, addr))
		}
	}
	if c.Launchpad.OperatorAddress == "" && !c.Wallet.HasKey() {
		errs = append(errs, "launchpad: operator_address is required when no wallet key is configured")
	}
	if c.Launchpad.OperatorAddress != "" && !common.IsHexAddress(c.Launchpad.OperatorAddress) {
		errs = append(errs, fmt.Sprintf("launchpad: operator_address %q is not a hex address", c.Launchpad.OperatorAddress))
	}
	if _, err := fixed.Parse(c.Launchpad.CreationFee); err != nil {
		errs = append(errs, "launchpad: creation_fee: "+err.Error())
	}
	if tc, err := c.Launchpad.TokenDefaults(); err != nil {
		errs = append(errs, err.Error())
	} else {
		tc.Name, tc.Symbol = "default", "DEF"
		if err := tc.Validate(); err != nil {
			errs = append(errs, "launchpad: "+err.Error())
		}
	}

	// Supabase is only needed when the log lives in PostgreSQL.
	if c.UsesPostgres() {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is only touched by the archive job.
	if strings.ToLower(c.Mode) == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Notify.WebhookURL != "" && c.Notify.WebhookSecret == "" {
		errs = append(errs, "notify: webhook_secret is required when webhook_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
