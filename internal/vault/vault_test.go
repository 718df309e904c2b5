package vault

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

var (
	vaultAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	tokenAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	creatorAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000022")
)

var t0 = time.Unix(1_700_000_000, 0)

type mapLedger map[common.Address]*big.Int

func (l mapLedger) Transfer(from, to common.Address, amount *big.Int) error {
	bal, ok := l[from]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	if l[to] == nil {
		l[to] = new(big.Int)
	}
	l[to].Add(l[to], amount)
	return nil
}

func newVault(t *testing.T) (*Vault, mapLedger) {
	t.Helper()
	ledger := mapLedger{
		alice: fixed.Units(1000),
		bob:   fixed.Units(1000),
	}
	v, err := New(Params{Address: vaultAddr, Token: tokenAddr, Creator: creatorAddr, Ledger: ledger})
	require.NoError(t, err)
	return v, ledger
}

func TestVotingPowerBreakpoints(t *testing.T) {
	amount := big.NewInt(100)
	tests := []struct {
		days int
		want int64
	}{
		{0, 100},
		{15, 150},
		{30, 200},
		{60, 250},
		{90, 300},
		{365, 500},
		{730, 500},
	}
	for _, tt := range tests {
		got := VotingPower(amount, t0, t0.Add(time.Duration(tt.days)*day))
		assert.Equal(t, tt.want, got.Int64(), "day %d", tt.days)
	}
}

func TestVotingPowerZeroStake(t *testing.T) {
	assert.Zero(t, VotingPower(new(big.Int), t0, t0.Add(400*day)).Sign())
	assert.Zero(t, VotingPower(big.NewInt(5), time.Time{}, t0).Sign())
}

func TestStakeAndUnstake(t *testing.T) {
	v, ledger := newVault(t)

	events, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed.Units(900).String(), ledger[alice].String())
	assert.Equal(t, fixed.Units(100).String(), ledger[vaultAddr].String())

	s := v.GetStake(alice)
	assert.Equal(t, fixed.Units(100).String(), s.Amount.String())
	assert.True(t, s.StakingStartTime.Equal(t0))

	_, err = v.Unstake(alice, fixed.Units(101), t0)
	require.ErrorIs(t, err, domain.ErrInsufficientStake)

	_, err = v.Unstake(alice, fixed.Units(40), t0.Add(day))
	require.NoError(t, err)
	s = v.GetStake(alice)
	assert.Equal(t, fixed.Units(60).String(), s.Amount.String())
	assert.True(t, s.StakingStartTime.Equal(t0))
	assert.True(t, s.LastClaimTime.Equal(t0.Add(day)))

	_, err = v.Unstake(alice, fixed.Units(60), t0.Add(2*day))
	require.NoError(t, err)
	s = v.GetStake(alice)
	assert.Zero(t, s.Amount.Sign())
	assert.True(t, s.StakingStartTime.IsZero())
	assert.Equal(t, fixed.Units(1000).String(), ledger[alice].String())
	assert.Zero(t, v.TotalStaked().Sign())
}

func TestStakeRequiresBalance(t *testing.T) {
	v, _ := newVault(t)

	_, err := v.Stake(alice, fixed.Units(5000), t0)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, v.GetStake(alice).Amount.Sign())

	_, err = v.Stake(alice, big.NewInt(0), t0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestTopUpAveragesStartTime(t *testing.T) {
	v, _ := newVault(t)

	_, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	_, err = v.Stake(alice, fixed.Units(100), t0.Add(30*day))
	require.NoError(t, err)

	s := v.GetStake(alice)
	assert.True(t, s.StakingStartTime.Equal(t0.Add(15*day)), "got %s", s.StakingStartTime)
	assert.Equal(t, fixed.Units(200).String(), s.Amount.String())
}

func TestPollLifecycle(t *testing.T) {
	v, _ := newVault(t)

	_, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	_, err = v.Stake(bob, fixed.Units(10), t0)
	require.NoError(t, err)

	_, _, err = v.CreateVote(alice, "next fight?", []string{"A", "B"}, time.Hour, nil, t0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = v.CreateVote(creatorAddr, "next fight?", []string{"A"}, time.Hour, nil, t0)
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	id, events, err := v.CreateVote(creatorAddr, "next fight?", []string{"A", "B"}, 48*time.Hour, fixed.Units(50), t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, uint64(1), v.VoteCount())

	now := t0.Add(30 * day)
	_, err = v.CastVote(alice, id, 1, t0.Add(time.Hour))
	require.NoError(t, err)

	_, err = v.CastVote(alice, id, 0, t0.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)

	_, err = v.CastVote(bob, id, 0, t0.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrInsufficientStakeForPoll)

	voted, err := v.HasVoted(id, alice)
	require.NoError(t, err)
	assert.True(t, voted)

	opt, err := v.GetVoteOption(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", opt.Label)
	assert.Equal(t, VotingPower(fixed.Units(100), t0, t0.Add(time.Hour)).String(), opt.Weight.String())

	poll, err := v.GetVote(id, now)
	require.NoError(t, err)
	assert.False(t, poll.Active)
	assert.Equal(t, 1, poll.Voters)

	_, err = v.CastVote(bob, id, 0, now)
	require.ErrorIs(t, err, domain.ErrPollExpired)
}

func TestCloseVote(t *testing.T) {
	v, _ := newVault(t)
	_, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	id, _, err := v.CreateVote(creatorAddr, "walkout song", []string{"A", "B"}, time.Hour, nil, t0)
	require.NoError(t, err)
	_, err = v.CastVote(alice, id, 0, t0)
	require.NoError(t, err)

	_, err = v.CloseVote(alice, id, t0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	events, err := v.CloseVote(creatorAddr, id, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []domain.Event{domain.VoteClosed{PollID: id}}, events)

	_, err = v.CastVote(bob, id, 1, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrPollNotActive)
	_, err = v.CloseVote(creatorAddr, id, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrPollNotActive)

	poll, err := v.GetVote(id, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, poll.Active)
	assert.Positive(t, poll.OptionWeights[0].Sign())

	expired, _, err := v.CreateVote(creatorAddr, "later", []string{"A", "B"}, time.Hour, nil, t0)
	require.NoError(t, err)
	_, err = v.CloseVote(creatorAddr, expired, t0.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrPollExpired)
}

func TestCastVoteRejectionsLeaveStateUntouched(t *testing.T) {
	v, _ := newVault(t)
	_, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	id, _, err := v.CreateVote(creatorAddr, "topic", []string{"A", "B", "C"}, time.Hour, nil, t0)
	require.NoError(t, err)

	_, err = v.CastVote(alice, id, 3, t0)
	require.ErrorIs(t, err, domain.ErrInvalidOption)

	_, err = v.CastVote(bob, id, 0, t0)
	require.ErrorIs(t, err, domain.ErrNoVotingPower)

	_, err = v.CastVote(alice, 9, 0, t0)
	require.ErrorIs(t, err, domain.ErrPollNotFound)

	voted, err := v.HasVoted(id, alice)
	require.NoError(t, err)
	assert.False(t, voted)
	poll, err := v.GetVote(id, t0)
	require.NoError(t, err)
	for _, w := range poll.OptionWeights {
		assert.Zero(t, w.Sign())
	}
}

func TestPredictions(t *testing.T) {
	v, _ := newVault(t)
	_, err := v.Stake(alice, fixed.Units(100), t0)
	require.NoError(t, err)
	_, err = v.Stake(bob, fixed.Units(50), t0)
	require.NoError(t, err)

	_, _, err = v.CreatePrediction(bob, "KO in round 1?", time.Hour, t0)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	id, _, err := v.CreatePrediction(creatorAddr, "KO in round 1?", time.Hour, t0)
	require.NoError(t, err)

	_, err = v.Predict(alice, id, true, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = v.Predict(bob, id, false, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = v.Predict(bob, id, true, t0.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)

	_, err = v.ResolvePrediction(creatorAddr, id, true, t0.Add(30*time.Minute))
	require.ErrorIs(t, err, domain.ErrPredictionNotEnded)

	_, err = v.ResolvePrediction(creatorAddr, id, true, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = v.ResolvePrediction(creatorAddr, id, false, t0.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrPredictionResolved)

	p, err := v.GetPrediction(id)
	require.NoError(t, err)
	assert.True(t, p.Resolved)
	assert.True(t, p.Outcome)
	assert.Equal(t, 2, p.Predictors)
	assert.Equal(t, 1, p.YesWeight.Cmp(p.NoWeight))
}
