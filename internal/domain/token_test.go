package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func baseConfig() TokenConfig {
	return TokenConfig{
		InitialPrice:     big.NewInt(5e14),
		StepSize:         units(50_000),
		Rule:             Multiplicative(2),
		GraduationTarget: units(300_000),
		CreatorShareBps:  500,
		PlatformFeeBps:   250,
		MaxSupply:        units(10_000_000),
		AntiRug:          AntiRugConfig{SellCooldown: time.Hour, MaxSellBps: 1000},
	}
}

func TestStepsRoundsUp(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, "200", cfg.Steps().String())

	cfg.MaxSupply = new(big.Int).Add(units(10_000_000), big.NewInt(1))
	assert.Equal(t, "201", cfg.Steps().String())
}

func TestValidateRejectsUnboundedCurves(t *testing.T) {
	require.NoError(t, baseConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*TokenConfig)
		want   string
	}{
		{"one wei steps", func(c *TokenConfig) { c.StepSize = big.NewInt(1) }, "steps"},
		{"too many steps", func(c *TokenConfig) { c.StepSize = units(999) }, "steps"},
		{"flat multiplicative", func(c *TokenConfig) { c.Rule = Multiplicative(1) }, "factor"},
		{"flat additive", func(c *TokenConfig) { c.Rule = Additive(new(big.Int)) }, "increment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	edge := baseConfig()
	edge.StepSize = units(1000)
	assert.NoError(t, edge.Validate(), "exactly MaxSteps steps is allowed")
}
