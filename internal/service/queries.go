package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// FactoryConfig is the launch configuration offered to creators.
type FactoryConfig struct {
	Address     common.Address
	Operator    common.Address
	CreationFee *big.Int
	Defaults    domain.TokenConfig
}

// StakeView is a stake together with its voting power right now.
type StakeView struct {
	Stake       domain.Stake
	VotingPower *big.Int
	TotalStaked *big.Int
}

// Config returns the factory's launch configuration.
func (s *LaunchpadService) Config() FactoryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FactoryConfig{
		Address:     s.factory.Address(),
		Operator:    s.factory.Operator(),
		CreationFee: s.factory.CreationFee(),
		Defaults:    s.factory.DefaultConfig(),
	}
}

// Tokens lists registered tokens in creation order, optionally filtered by
// creator.
func (s *LaunchpadService) Tokens(creator *common.Address) []domain.TokenInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := s.factory.Tokens()
	if creator != nil {
		addrs = s.factory.TokensOf(*creator)
	}
	out := make([]domain.TokenInfo, 0, len(addrs))
	for _, a := range addrs {
		if info, ok := s.factory.Info(a); ok {
			out = append(out, info)
		}
	}
	return out
}

// TokenInfo returns the registry entry for addr.
func (s *LaunchpadService) TokenInfo(addr common.Address) (domain.TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.factory.Info(addr)
	if !ok {
		return domain.TokenInfo{}, fmt.Errorf("launchpad_service: token %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return info, nil
}

// State returns the bonding curve state of addr.
func (s *LaunchpadService) State(addr common.Address) (domain.CurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(addr)
	if err != nil {
		return domain.CurveState{}, fmt.Errorf("launchpad_service: state: %w", err)
	}
	return tok.State(), nil
}

// QuoteBuy returns the tokens a payment would buy now. With fees the payment
// is gross, as sent to a buy; without, it is the reserve amount priced on the
// bare curve.
func (s *LaunchpadService) QuoteBuy(addr common.Address, payment *big.Int, fees bool) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(addr)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: quote buy: %w", err)
	}
	if !fees {
		return tok.CalculateTokensFromCHZ(payment)
	}
	return tok.QuoteBuy(payment)
}

// QuoteCost returns the payment needed to buy tokens now, gross of fees or
// the bare curve cost.
func (s *LaunchpadService) QuoteCost(addr common.Address, tokens *big.Int, fees bool) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(addr)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: quote cost: %w", err)
	}
	if !fees {
		return tok.CalculateCHZFromTokens(tokens)
	}
	return tok.QuoteBuyCost(tokens)
}

// QuoteSell returns what selling tokens would pay out now.
func (s *LaunchpadService) QuoteSell(addr common.Address, tokens *big.Int) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(addr)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: quote sell: %w", err)
	}
	return tok.QuoteSell(tokens)
}

// Balance returns holder's token balance.
func (s *LaunchpadService) Balance(addr, holder common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, err := s.token(addr)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: balance: %w", err)
	}
	return tok.BalanceOf(holder), nil
}

// Stake returns staker's position in the token's vault.
func (s *LaunchpadService) Stake(addr, staker common.Address) (StakeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.vault(addr)
	if err != nil {
		return StakeView{}, fmt.Errorf("launchpad_service: stake: %w", err)
	}
	return StakeView{
		Stake:       v.GetStake(staker),
		VotingPower: v.VotingPowerOf(staker, s.now()),
		TotalStaked: v.TotalStaked(),
	}, nil
}

// Vote returns a poll.
func (s *LaunchpadService) Vote(addr common.Address, pollID uint64) (domain.Poll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.vault(addr)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("launchpad_service: vote: %w", err)
	}
	return v.GetVote(pollID, s.now())
}

// VoteOption returns one option of a poll with its weight.
func (s *LaunchpadService) VoteOption(addr common.Address, pollID, option uint64) (domain.PollOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.vault(addr)
	if err != nil {
		return domain.PollOption{}, fmt.Errorf("launchpad_service: vote option: %w", err)
	}
	return v.GetVoteOption(pollID, option)
}

// HasVoted reports whether voter has voted in a poll.
func (s *LaunchpadService) HasVoted(addr common.Address, pollID uint64, voter common.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.vault(addr)
	if err != nil {
		return false, fmt.Errorf("launchpad_service: has voted: %w", err)
	}
	return v.HasVoted(pollID, voter)
}

// Prediction returns a prediction with its current tallies.
func (s *LaunchpadService) Prediction(addr common.Address, id uint64) (domain.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.vault(addr)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("launchpad_service: prediction: %w", err)
	}
	return v.GetPrediction(id)
}

// Events returns persisted events for a token, newest first.
func (s *LaunchpadService) Events(ctx context.Context, tokenAddr common.Address, opts domain.ListOpts) ([]domain.EventRecord, error) {
	evs, err := s.events.ListByToken(ctx, tokenAddr, opts)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: events: %w", err)
	}
	return evs, nil
}

// Payouts returns CHZ transfers received by an address.
func (s *LaunchpadService) Payouts(ctx context.Context, to common.Address, opts domain.ListOpts) ([]domain.Payout, error) {
	ps, err := s.payoutStore.ListByRecipient(ctx, to, opts)
	if err != nil {
		return nil, fmt.Errorf("launchpad_service: payouts: %w", err)
	}
	return ps, nil
}

// CachedPrices returns prices from the state cache, used by dashboards that
// track many tokens at once.
func (s *LaunchpadService) CachedPrices(ctx context.Context, tokens []common.Address) (map[common.Address]string, error) {
	if s.state == nil {
		return nil, fmt.Errorf("launchpad_service: cached prices: %w", domain.ErrNotFound)
	}
	return s.state.GetPrices(ctx, tokens)
}
