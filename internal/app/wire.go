package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/pumpfight/internal/blob/s3"
	memcache "github.com/alanyoungcy/pumpfight/internal/cache/memory"
	"github.com/alanyoungcy/pumpfight/internal/cache/redis"
	"github.com/alanyoungcy/pumpfight/internal/config"
	"github.com/alanyoungcy/pumpfight/internal/crypto"
	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/factory"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/metrics"
	"github.com/alanyoungcy/pumpfight/internal/notify"
	memstore "github.com/alanyoungcy/pumpfight/internal/store/memory"
	"github.com/alanyoungcy/pumpfight/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Factory identity and launch defaults.
	Params factory.Params

	// Stores
	CommandStore domain.CommandStore
	TokenStore   domain.TokenStore
	EventStore   domain.EventStore
	PayoutStore  domain.PayoutStore
	AuditStore   domain.AuditStore

	// Caches. StateCache and LockManager are nil without Redis.
	StateCache  domain.CurveStateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (archive mode only)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Signing, notifications and metrics. Signer may be nil.
	Signer   *crypto.Signer
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(step string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", step, err)
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- Operator key ---
	if cfg.Wallet.HasKey() {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail("operator key", err)
		}
		deps.Signer = crypto.NewSigner(key)
	}

	params, err := factoryParams(cfg, deps.Signer)
	if err != nil {
		return fail("launchpad", err)
	}
	deps.Params = params

	// --- Stores ---
	if cfg.UsesPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.CommandStore = postgres.NewCommandStore(pool)
		deps.TokenStore = postgres.NewTokenStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.PayoutStore = postgres.NewPayoutStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		logger.WarnContext(ctx, "storage is in memory; the command log is lost on exit")
		mem := memstore.New()
		deps.CommandStore = mem.Commands()
		deps.TokenStore = mem.Tokens()
		deps.EventStore = mem.Events()
		deps.PayoutStore = mem.Payouts()
		deps.AuditStore = mem.Audit()
	}

	// --- Redis (or in-process fallbacks) ---
	streamMaxLen := 10000
	if cfg.Redis.StreamMaxLen > 0 {
		streamMaxLen = cfg.Redis.StreamMaxLen
	}
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		redisTTL := time.Duration(0)
		if cfg.Redis.CacheTTLMinutes > 0 {
			redisTTL = time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
		}
		deps.StateCache = redis.NewStateCache(redisClient, redisTTL)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, streamMaxLen)
	} else {
		deps.RateLimiter = memcache.NewRateLimiter()
		deps.SignalBus = memcache.NewBus(streamMaxLen)
	}

	// --- S3 blob storage (archive mode only) ---
	if cfg.Mode == "archive" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewEventArchiver(deps.BlobWriter, deps.BlobReader, deps.EventStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// factoryParams resolves the factory identity. Without an explicit operator
// address the signing key's address is the operator.
func factoryParams(cfg *config.Config, signer *crypto.Signer) (factory.Params, error) {
	defaults, err := cfg.Launchpad.TokenDefaults()
	if err != nil {
		return factory.Params{}, err
	}
	fee, err := fixed.Parse(cfg.Launchpad.CreationFee)
	if err != nil {
		return factory.Params{}, fmt.Errorf("creation_fee: %w", err)
	}

	operator := common.HexToAddress(cfg.Launchpad.OperatorAddress)
	if cfg.Launchpad.OperatorAddress == "" {
		if signer == nil {
			return factory.Params{}, fmt.Errorf("operator: %w", domain.ErrInvalidConfig)
		}
		operator = signer.Address()
	}

	return factory.Params{
		Address:     common.HexToAddress(cfg.Launchpad.FactoryAddress),
		Operator:    operator,
		Treasury:    common.HexToAddress(cfg.Launchpad.TreasuryAddress),
		CreationFee: fee,
		Defaults:    defaults,
	}, nil
}
