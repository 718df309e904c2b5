package vault

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

type poll struct {
	topic    string
	options  []string
	weights  []*big.Int
	deadline time.Time
	minStake *big.Int
	active   bool
	voted    map[common.Address]bool
}

// open reports whether the poll still accepts votes at now. A poll is
// terminal once its deadline passes.
func (p *poll) open(now time.Time) bool {
	return p.active && now.Before(p.deadline)
}

// CreateVote opens a poll. Only the token creator may create polls.
func (v *Vault) CreateVote(caller common.Address, topic string, options []string, duration time.Duration, minStake *big.Int, now time.Time) (uint64, []domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return 0, nil, fmt.Errorf("vault: create vote: %w", err)
	}
	defer leave()

	if caller != v.creator {
		return 0, nil, fmt.Errorf("vault: create vote: %w", domain.ErrUnauthorized)
	}
	if len(options) < 2 {
		return 0, nil, fmt.Errorf("vault: create vote: %w: need at least 2 options", domain.ErrInvalidOption)
	}
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			return 0, nil, fmt.Errorf("vault: create vote: %w: empty option", domain.ErrInvalidOption)
		}
	}
	if duration <= 0 {
		return 0, nil, fmt.Errorf("vault: create vote: %w: duration must be positive", domain.ErrInvalidAmount)
	}
	if minStake == nil || minStake.Sign() < 0 {
		minStake = new(big.Int)
	}

	p := &poll{
		topic:    topic,
		options:  append([]string(nil), options...),
		weights:  make([]*big.Int, len(options)),
		deadline: now.Add(duration),
		minStake: new(big.Int).Set(minStake),
		active:   true,
		voted:    make(map[common.Address]bool),
	}
	for i := range p.weights {
		p.weights[i] = new(big.Int)
	}

	id := uint64(len(v.polls))
	v.polls = append(v.polls, p)

	return id, []domain.Event{domain.VoteCreated{
		PollID:   id,
		Topic:    topic,
		Deadline: p.deadline.Unix(),
	}}, nil
}

// CastVote records voter's choice weighted by their voting power at now.
// The weight is fixed at cast time.
func (v *Vault) CastVote(voter common.Address, pollID, option uint64, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: cast vote: %w", err)
	}
	defer leave()

	p, err := v.poll(pollID)
	if err != nil {
		return nil, fmt.Errorf("vault: cast vote: %w", err)
	}
	if !p.active {
		return nil, fmt.Errorf("vault: cast vote: %w", domain.ErrPollNotActive)
	}
	if !now.Before(p.deadline) {
		return nil, fmt.Errorf("vault: cast vote: %w", domain.ErrPollExpired)
	}
	if p.voted[voter] {
		return nil, fmt.Errorf("vault: cast vote: %w", domain.ErrAlreadyVoted)
	}
	stake := v.GetStake(voter)
	if stake.Amount.Cmp(p.minStake) < 0 {
		return nil, fmt.Errorf("vault: cast vote: %w: staked %s, need %s",
			domain.ErrInsufficientStakeForPoll, fixed.Format(stake.Amount), fixed.Format(p.minStake))
	}
	weight := VotingPower(stake.Amount, stake.StakingStartTime, now)
	if weight.Sign() == 0 {
		return nil, fmt.Errorf("vault: cast vote: %w", domain.ErrNoVotingPower)
	}
	if option >= uint64(len(p.options)) {
		return nil, fmt.Errorf("vault: cast vote: %w: index %d", domain.ErrInvalidOption, option)
	}

	p.weights[option].Add(p.weights[option], weight)
	p.voted[voter] = true

	return []domain.Event{domain.VoteCast{
		Voter:  voter,
		PollID: pollID,
		Option: option,
		Weight: weight,
	}}, nil
}

// CloseVote ends a poll before its deadline. Only the token creator may close
// polls, and tallies stay readable afterwards.
func (v *Vault) CloseVote(caller common.Address, pollID uint64, now time.Time) ([]domain.Event, error) {
	leave, err := v.enter()
	if err != nil {
		return nil, fmt.Errorf("vault: close vote: %w", err)
	}
	defer leave()

	if caller != v.creator {
		return nil, fmt.Errorf("vault: close vote: %w", domain.ErrUnauthorized)
	}
	p, err := v.poll(pollID)
	if err != nil {
		return nil, fmt.Errorf("vault: close vote: %w", err)
	}
	if !p.active {
		return nil, fmt.Errorf("vault: close vote: %w", domain.ErrPollNotActive)
	}
	if !now.Before(p.deadline) {
		return nil, fmt.Errorf("vault: close vote: %w", domain.ErrPollExpired)
	}

	p.active = false
	return []domain.Event{domain.VoteClosed{PollID: pollID}}, nil
}

// GetVote returns a snapshot of the poll. Active is false once the deadline
// has passed.
func (v *Vault) GetVote(pollID uint64, now time.Time) (domain.Poll, error) {
	p, err := v.poll(pollID)
	if err != nil {
		return domain.Poll{}, fmt.Errorf("vault: get vote: %w", err)
	}
	weights := make([]*big.Int, len(p.weights))
	for i, w := range p.weights {
		weights[i] = new(big.Int).Set(w)
	}
	return domain.Poll{
		ID:               pollID,
		Topic:            p.topic,
		Options:          append([]string(nil), p.options...),
		Deadline:         p.deadline,
		MinStakeRequired: new(big.Int).Set(p.minStake),
		Active:           p.open(now),
		OptionWeights:    weights,
		Voters:           len(p.voted),
	}, nil
}

// GetVoteOption returns the label and accumulated weight of one option.
func (v *Vault) GetVoteOption(pollID, option uint64) (domain.PollOption, error) {
	p, err := v.poll(pollID)
	if err != nil {
		return domain.PollOption{}, fmt.Errorf("vault: get vote option: %w", err)
	}
	if option >= uint64(len(p.options)) {
		return domain.PollOption{}, fmt.Errorf("vault: get vote option: %w: index %d", domain.ErrInvalidOption, option)
	}
	return domain.PollOption{
		Label:  p.options[option],
		Weight: new(big.Int).Set(p.weights[option]),
	}, nil
}

// HasVoted reports whether voter already voted in the poll.
func (v *Vault) HasVoted(pollID uint64, voter common.Address) (bool, error) {
	p, err := v.poll(pollID)
	if err != nil {
		return false, fmt.Errorf("vault: has voted: %w", err)
	}
	return p.voted[voter], nil
}

// VoteCount returns the number of polls ever created.
func (v *Vault) VoteCount() uint64 { return uint64(len(v.polls)) }

func (v *Vault) poll(id uint64) (*poll, error) {
	if id >= uint64(len(v.polls)) {
		return nil, domain.ErrPollNotFound
	}
	return v.polls[id], nil
}
