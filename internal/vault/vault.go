// Package vault implements the staking vault paired with every launchpad
// token. Holders lock tokens in the vault to accrue time-weighted voting
// power, which weighs their votes in creator polls and their answers in
// creator predictions.
package vault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// Ledger is the token-side view the vault needs to take and return custody.
type Ledger interface {
	Transfer(from, to common.Address, amount *big.Int) error
}

// Params configures a new Vault.
type Params struct {
	Address common.Address
	Token   common.Address
	Creator common.Address
	Ledger  Ledger
}

// Vault holds stakes, polls and predictions for a single token. Like the
// token it is a single-threaded state machine driven with explicit times.
type Vault struct {
	addr    common.Address
	token   common.Address
	creator common.Address
	ledger  Ledger

	stakes      map[common.Address]*domain.Stake
	totalStaked *big.Int
	polls       []*poll
	predictions []*prediction

	busy bool
}

// New returns an empty vault.
func New(p Params) (*Vault, error) {
	if p.Ledger == nil {
		return nil, fmt.Errorf("vault: new: ledger is required")
	}
	return &Vault{
		addr:        p.Address,
		token:       p.Token,
		creator:     p.Creator,
		ledger:      p.Ledger,
		stakes:      make(map[common.Address]*domain.Stake),
		totalStaked: new(big.Int),
	}, nil
}

func (v *Vault) Address() common.Address { return v.addr }
func (v *Vault) Token() common.Address   { return v.token }

// TotalStaked returns the sum of all stakes.
func (v *Vault) TotalStaked() *big.Int { return new(big.Int).Set(v.totalStaked) }

// GetStake returns a copy of staker's position. Unknown stakers get a zero
// stake.
func (v *Vault) GetStake(staker common.Address) domain.Stake {
	s, ok := v.stakes[staker]
	if !ok {
		return domain.Stake{Amount: new(big.Int)}
	}
	return copyStake(s)
}

// VotingPowerOf returns staker's voting power at now.
func (v *Vault) VotingPowerOf(staker common.Address, now time.Time) *big.Int {
	s, ok := v.stakes[staker]
	if !ok {
		return new(big.Int)
	}
	return VotingPower(s.Amount, s.StakingStartTime, now)
}

// Stake moves amount tokens from staker into the vault. A top-up moves the
// start time to the amount-weighted average of the old start and now, so
// fresh tokens do not inherit the full age of the existing position.
func (v *Vault) Stake(staker common.Address, amount *big.Int, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: stake: %w", err)
	}
	defer leave()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("vault: stake: %w", domain.ErrInvalidAmount)
	}
	if err := v.ledger.Transfer(staker, v.addr, amount); err != nil {
		return nil, fmt.Errorf("vault: stake: %w", err)
	}

	s, ok := v.stakes[staker]
	if !ok || s.Amount.Sign() == 0 {
		s = &domain.Stake{Amount: new(big.Int), StakingStartTime: now}
		v.stakes[staker] = s
	} else {
		s.StakingStartTime = weightedStart(s.Amount, s.StakingStartTime, amount, now)
	}
	s.Amount.Add(s.Amount, amount)
	s.LastClaimTime = now
	v.totalStaked.Add(v.totalStaked, amount)

	return []domain.Event{domain.Staked{Staker: staker, Amount: new(big.Int).Set(amount)}}, nil
}

// Unstake returns amount tokens to staker. A partial unstake keeps the start
// time; a full unstake clears the position.
func (v *Vault) Unstake(staker common.Address, amount *big.Int, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: unstake: %w", err)
	}
	defer leave()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("vault: unstake: %w", domain.ErrInvalidAmount)
	}
	s, ok := v.stakes[staker]
	if !ok || s.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("vault: unstake: %w", domain.ErrInsufficientStake)
	}

	prev := copyStake(s)
	s.Amount.Sub(s.Amount, amount)
	s.LastClaimTime = now
	if s.Amount.Sign() == 0 {
		delete(v.stakes, staker)
	}
	v.totalStaked.Sub(v.totalStaked, amount)

	if err := v.ledger.Transfer(v.addr, staker, amount); err != nil {
		v.stakes[staker] = &prev
		v.totalStaked.Add(v.totalStaked, amount)
		return nil, fmt.Errorf("vault: unstake: %w", err)
	}

	return []domain.Event{domain.Unstaked{Staker: staker, Amount: new(big.Int).Set(amount)}}, nil
}

func weightedStart(oldAmt *big.Int, oldStart time.Time, add *big.Int, now time.Time) time.Time {
	total := new(big.Int).Add(oldAmt, add)
	sum := new(big.Int).Mul(oldAmt, big.NewInt(oldStart.Unix()))
	sum.Add(sum, new(big.Int).Mul(add, big.NewInt(now.Unix())))
	return time.Unix(sum.Quo(sum, total).Int64(), 0)
}

func copyStake(s *domain.Stake) domain.Stake {
	return domain.Stake{
		Amount:           fixed.Clone(s.Amount),
		StakingStartTime: s.StakingStartTime,
		LastClaimTime:    s.LastClaimTime,
	}
}

func (v *Vault) enter() (func(), error) {
	if v.busy {
		return nil, domain.ErrReentrantCall
	}
	v.busy = true
	return func() { v.busy = false }, nil
}
