package handler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/service"
)

// Launchpad is the service surface the HTTP handlers need.
type Launchpad interface {
	Execute(ctx context.Context, kind domain.CommandKind, tokenAddr, caller common.Address, args any, idemKey string) (*service.Receipt, error)

	Config() service.FactoryConfig
	Tokens(creator *common.Address) []domain.TokenInfo
	TokenInfo(addr common.Address) (domain.TokenInfo, error)
	State(addr common.Address) (domain.CurveState, error)
	QuoteBuy(addr common.Address, payment *big.Int, fees bool) (*big.Int, error)
	QuoteCost(addr common.Address, tokens *big.Int, fees bool) (*big.Int, error)
	QuoteSell(addr common.Address, tokens *big.Int) (*big.Int, error)
	Balance(addr, holder common.Address) (*big.Int, error)

	Stake(addr, staker common.Address) (service.StakeView, error)
	Vote(addr common.Address, pollID uint64) (domain.Poll, error)
	VoteOption(addr common.Address, pollID, option uint64) (domain.PollOption, error)
	HasVoted(addr common.Address, pollID uint64, voter common.Address) (bool, error)
	Prediction(addr common.Address, id uint64) (domain.Prediction, error)

	Events(ctx context.Context, tokenAddr common.Address, opts domain.ListOpts) ([]domain.EventRecord, error)
	Payouts(ctx context.Context, to common.Address, opts domain.ListOpts) ([]domain.Payout, error)

	LastSeq() int64
	Stale() bool
}

var _ Launchpad = (*service.LaunchpadService)(nil)
