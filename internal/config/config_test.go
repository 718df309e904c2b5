package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

const treasury = "0x00000000000000000000000000000000000000aa"

func validConfig() Config {
	cfg := Defaults()
	cfg.Launchpad.TreasuryAddress = treasury
	cfg.Launchpad.OperatorAddress = "0x00000000000000000000000000000000000000bb"
	return cfg
}

func TestDefaultsValidateOnceAddressesAreSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	bare := Defaults()
	err := bare.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "treasury_address")
	assert.Contains(t, err.Error(), "operator_address is required")
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Launchpad.CreatorShareBps = 9000
	cfg.Launchpad.PlatformFeeBps = 1000
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{`unknown mode "trade"`, `unknown log_level "loud"`, "creator share", "server: port"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMemoryStorageSkipsSupabase(t *testing.T) {
	cfg := validConfig()
	cfg.Supabase.Host = ""
	cfg.Supabase.PoolMaxConns = 0
	require.Error(t, cfg.Validate())

	cfg.Storage = "memory"
	assert.False(t, cfg.UsesPostgres())
	require.NoError(t, cfg.Validate())

	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive mode requires storage")
}

func TestTokenDefaultsAdditive(t *testing.T) {
	l := validConfig().Launchpad
	l.CurveKind = "additive"
	l.PriceIncrement = "0.25"

	tc, err := l.TokenDefaults()
	require.NoError(t, err)
	assert.Equal(t, domain.CurveAdditive, tc.Rule.Kind)
	assert.Equal(t, "250000000000000000", tc.Rule.Increment.String())
	assert.Equal(t, time.Hour, tc.AntiRug.SellCooldown)

	l.InitialPrice = "abc"
	_, err = l.TokenDefaults()
	assert.ErrorContains(t, err, "initial_price")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpfight.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "replay"

[launchpad]
treasury_address = "`+treasury+`"
sell_cooldown = "30m"
`), 0o600))

	t.Setenv("PUMPFIGHT_STORAGE", "memory")
	t.Setenv("PUMPFIGHT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "replay", cfg.Mode)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, treasury, cfg.Launchpad.TreasuryAddress)
	assert.Equal(t, 30*time.Minute, cfg.Launchpad.SellCooldown.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, uint64(1000), cfg.Launchpad.MaxSellBps)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Server.OperatorAPIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Server.OperatorAPIKey)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
