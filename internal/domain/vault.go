package domain

import (
	"math/big"
	"time"
)

// Stake is one address's position in a staking vault.
type Stake struct {
	Amount           *big.Int
	StakingStartTime time.Time
	LastClaimTime    time.Time
}

// Poll is a creator-run vote weighted by voting power at cast time.
type Poll struct {
	ID               uint64
	Topic            string
	Options          []string
	Deadline         time.Time
	MinStakeRequired *big.Int
	Active           bool
	OptionWeights    []*big.Int
	Voters           int
}

// PollOption is a single option of a poll with its accumulated weight.
type PollOption struct {
	Label  string
	Weight *big.Int
}

// Prediction is a yes/no question whose answers are weighted by voting power.
type Prediction struct {
	ID         uint64
	Question   string
	Deadline   time.Time
	YesWeight  *big.Int
	NoWeight   *big.Int
	Predictors int
	Resolved   bool
	Outcome    bool
}
