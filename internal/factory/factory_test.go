package factory

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

var (
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	operatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	creatorAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	buyer        = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

var t0 = time.Unix(1_700_000_000, 0)

func defaults() domain.TokenConfig {
	return domain.TokenConfig{
		InitialPrice:     fixed.MustParse("0.0005"),
		StepSize:         fixed.Units(50000),
		Rule:             domain.Multiplicative(2),
		GraduationTarget: fixed.Units(300000),
		CreatorShareBps:  500,
		PlatformFeeBps:   250,
		MaxSupply:        fixed.Units(10_000_000),
		AntiRug:          domain.AntiRugConfig{SellCooldown: time.Hour, MaxSellBps: 1000},
	}
}

func newFactory(t *testing.T) (*Factory, *domain.PayoutBuffer) {
	t.Helper()
	payer := &domain.PayoutBuffer{}
	f, err := New(Params{
		Address:     factoryAddr,
		Operator:    operatorAddr,
		Treasury:    treasuryAddr,
		CreationFee: fixed.Units(100),
		Defaults:    defaults(),
		Payer:       payer,
	})
	require.NoError(t, err)
	return f, payer
}

func TestCreateTokenChargesFeeAndRefundsExcess(t *testing.T) {
	f, payer := newFactory(t)

	_, err := f.CreateToken(creatorAddr, CreateParams{Name: "Fighter", Symbol: "fgt"}, fixed.Units(99), t0)
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)
	assert.Empty(t, payer.Drain())

	created, err := f.CreateToken(creatorAddr, CreateParams{Name: "Fighter", Symbol: "fgt"}, fixed.Units(120), t0)
	require.NoError(t, err)

	assert.Equal(t, crypto.CreateAddress(factoryAddr, 0), created.Info.Address)
	assert.Equal(t, crypto.CreateAddress(factoryAddr, 1), created.Info.Vault)
	assert.Equal(t, "FGT", created.Info.Config.Symbol)

	payouts := payer.Drain()
	require.Len(t, payouts, 2)
	assert.Equal(t, domain.PayoutCreationFee, payouts[0].Reason)
	assert.Equal(t, treasuryAddr, payouts[0].To)
	assert.Equal(t, fixed.Units(100).String(), payouts[0].Amount.String())
	assert.Equal(t, domain.PayoutFeeRefund, payouts[1].Reason)
	assert.Equal(t, fixed.Units(20).String(), payouts[1].Amount.String())

	require.Len(t, created.Events, 1)
	ev := created.Events[0].(domain.TokenCreated)
	assert.Equal(t, creatorAddr, ev.Creator)

	assert.True(t, f.IsValidToken(created.Info.Address))
	assert.False(t, f.IsValidToken(created.Info.Vault))
	assert.Equal(t, []common.Address{created.Info.Address}, f.TokensOf(creatorAddr))
}

func TestCreateTokenAdditiveOverride(t *testing.T) {
	f, _ := newFactory(t)

	created, err := f.CreateToken(creatorAddr, CreateParams{
		Name:         "Simple",
		Symbol:       "SMP",
		Kind:         domain.CurveAdditive,
		InitialPrice: fixed.MustParse("0.001"),
		StepSize:     fixed.Units(1000),
		Increment:    fixed.MustParse("0.0001"),
	}, fixed.Units(100), t0)
	require.NoError(t, err)
	assert.Equal(t, domain.CurveAdditive, created.Info.Config.Rule.Kind)

	_, err = f.CreateToken(creatorAddr, CreateParams{Name: "X", Symbol: "X", Kind: domain.CurveAdditive}, fixed.Units(100), t0)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = f.CreateToken(creatorAddr, CreateParams{Name: "", Symbol: "X"}, fixed.Units(100), t0)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	assert.Len(t, f.Tokens(), 1)
}

func TestCreateTokenRejectsUnboundedCurves(t *testing.T) {
	f, payer := newFactory(t)

	for _, p := range []CreateParams{
		{Name: "Dust", Symbol: "D", StepSize: big.NewInt(1)},
		{Name: "Flat", Symbol: "F", Kind: domain.CurveAdditive, Increment: new(big.Int)},
		{Name: "Wide", Symbol: "W", StepSize: fixed.Units(1), MaxSupply: fixed.Units(1_000_000)},
	} {
		_, err := f.CreateToken(creatorAddr, p, fixed.Units(100), t0)
		require.ErrorIs(t, err, domain.ErrInvalidConfig, p.Name)
	}
	assert.Empty(t, f.Tokens())
	assert.Empty(t, payer.Drain())
}

func TestCreatedTokenAndVaultAreWired(t *testing.T) {
	f, _ := newFactory(t)
	created, err := f.CreateToken(creatorAddr, CreateParams{Name: "Fighter", Symbol: "FGT"}, fixed.Units(100), t0)
	require.NoError(t, err)

	tok, ok := f.Token(created.Info.Address)
	require.True(t, ok)
	vlt, ok := f.Vault(created.Info.Address)
	require.True(t, ok)

	res, err := tok.Buy(buyer, fixed.Units(10), nil, t0)
	require.NoError(t, err)

	_, err = vlt.Stake(buyer, res.TokensOut, t0)
	require.NoError(t, err)
	assert.Zero(t, tok.BalanceOf(buyer).Sign())
	assert.Equal(t, res.TokensOut.String(), tok.BalanceOf(created.Info.Vault).String())

	_, err = tok.Pause(operatorAddr)
	require.NoError(t, err)

	_, _, err = vlt.CreateVote(creatorAddr, "walkout song", []string{"a", "b"}, time.Hour, big.NewInt(0), t0)
	require.NoError(t, err)
}
