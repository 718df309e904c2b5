package domain

import "errors"

// Engine errors. Every failing engine call returns one of these (wrapped) and
// leaves token, vault and factory state untouched.
var (
	ErrInsufficientPayment       = errors.New("insufficient payment")
	ErrSlippageExceeded          = errors.New("slippage exceeded")
	ErrSupplyCapExceeded         = errors.New("supply cap exceeded")
	ErrCurvePaused               = errors.New("curve paused")
	ErrCurveGraduated            = errors.New("curve graduated")
	ErrSellCooldownActive        = errors.New("sell cooldown active")
	ErrMaxSellPercentageExceeded = errors.New("max sell percentage exceeded")
	ErrInsufficientReserve       = errors.New("insufficient reserve")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientStake         = errors.New("insufficient stake")
	ErrInvalidAmount             = errors.New("invalid amount")
	ErrInvalidConfig             = errors.New("invalid token config")
	ErrReentrantCall             = errors.New("reentrant call")

	ErrPollNotFound             = errors.New("poll not found")
	ErrPollNotActive            = errors.New("poll not active")
	ErrPollExpired              = errors.New("poll expired")
	ErrAlreadyVoted             = errors.New("already voted")
	ErrInsufficientStakeForPoll = errors.New("insufficient stake for poll")
	ErrInvalidOption            = errors.New("invalid option")
	ErrNoVotingPower            = errors.New("no voting power")

	ErrPredictionNotFound = errors.New("prediction not found")
	ErrPredictionNotEnded = errors.New("prediction not ended")
	ErrPredictionResolved = errors.New("prediction already resolved")
	ErrPredictionClosed   = errors.New("prediction closed")
)

// Infrastructure errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrSigningFailed   = errors.New("signing failed")
	ErrLockHeld        = errors.New("lock already held")
	ErrInvalidArgument = errors.New("invalid argument")
)
