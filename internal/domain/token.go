package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BpsDenominator is the basis-point denominator used by every share and
// percentage in the launchpad.
const BpsDenominator = 10_000

// CurveKind selects how the price grows from one step to the next.
type CurveKind string

const (
	CurveMultiplicative CurveKind = "multiplicative"
	CurveAdditive       CurveKind = "additive"
)

// StepRule is the tagged price-growth rule of a curve. Factor is read for
// multiplicative curves, Increment for additive ones.
type StepRule struct {
	Kind      CurveKind
	Factor    uint64
	Increment *big.Int
}

// Multiplicative returns a rule where price(step) = initial * factor^step.
func Multiplicative(factor uint64) StepRule {
	return StepRule{Kind: CurveMultiplicative, Factor: factor}
}

// Additive returns a rule where price(step) = initial + increment*step.
func Additive(increment *big.Int) StepRule {
	return StepRule{Kind: CurveAdditive, Increment: new(big.Int).Set(increment)}
}

// AntiRugConfig bounds how quickly a holder may exit after buying.
type AntiRugConfig struct {
	SellCooldown time.Duration
	MaxSellBps   uint64
}

// TokenConfig is fixed at creation time. All amounts are 18-decimal fixed
// point integers: prices in CHZ-wei per whole token, supplies in token-wei.
type TokenConfig struct {
	Name             string
	Symbol           string
	InitialPrice     *big.Int
	StepSize         *big.Int
	Rule             StepRule
	GraduationTarget *big.Int
	CreatorShareBps  uint64
	PlatformFeeBps   uint64
	MaxSupply        *big.Int
	AntiRug          AntiRugConfig
}

// MaxSteps caps how many price steps a curve may have. Conversions walk the
// curve one step at a time, so the step count bounds their cost.
const MaxSteps = 10_000

// Steps returns ceil(MaxSupply / StepSize).
func (c TokenConfig) Steps() *big.Int {
	n := new(big.Int).Add(c.MaxSupply, c.StepSize)
	n.Sub(n, big.NewInt(1))
	return n.Quo(n, c.StepSize)
}

// Validate reports the first structural problem with the config.
func (c TokenConfig) Validate() error {
	switch {
	case c.InitialPrice == nil || c.InitialPrice.Sign() <= 0:
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidConfig)
	case c.StepSize == nil || c.StepSize.Sign() <= 0:
		return fmt.Errorf("%w: step size must be positive", ErrInvalidConfig)
	case c.MaxSupply == nil || c.MaxSupply.Sign() <= 0:
		return fmt.Errorf("%w: max supply must be positive", ErrInvalidConfig)
	case c.GraduationTarget == nil || c.GraduationTarget.Sign() <= 0:
		return fmt.Errorf("%w: graduation target must be positive", ErrInvalidConfig)
	case c.CreatorShareBps+c.PlatformFeeBps >= BpsDenominator:
		return fmt.Errorf("%w: creator share plus platform fee must be below %d bps", ErrInvalidConfig, BpsDenominator)
	case c.AntiRug.MaxSellBps == 0 || c.AntiRug.MaxSellBps > BpsDenominator:
		return fmt.Errorf("%w: max sell must be within (0, %d] bps", ErrInvalidConfig, BpsDenominator)
	case c.AntiRug.SellCooldown < 0:
		return fmt.Errorf("%w: sell cooldown must not be negative", ErrInvalidConfig)
	case c.Steps().Cmp(big.NewInt(MaxSteps)) > 0:
		return fmt.Errorf("%w: max supply spans more than %d steps", ErrInvalidConfig, MaxSteps)
	}

	switch c.Rule.Kind {
	case CurveMultiplicative:
		if c.Rule.Factor < 2 {
			return fmt.Errorf("%w: multiplicative factor must be at least 2", ErrInvalidConfig)
		}
	case CurveAdditive:
		if c.Rule.Increment == nil || c.Rule.Increment.Sign() <= 0 {
			return fmt.Errorf("%w: additive increment must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown curve kind %q", ErrInvalidConfig, c.Rule.Kind)
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias the big.Int fields.
func (c TokenConfig) Clone() TokenConfig {
	out := c
	out.InitialPrice = cloneInt(c.InitialPrice)
	out.StepSize = cloneInt(c.StepSize)
	out.GraduationTarget = cloneInt(c.GraduationTarget)
	out.MaxSupply = cloneInt(c.MaxSupply)
	out.Rule.Increment = cloneInt(c.Rule.Increment)
	return out
}

// Phase is the lifecycle state of a bonding-curve token.
type Phase uint8

const (
	PhaseActive Phase = iota
	PhasePaused
	PhaseGraduated
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhasePaused:
		return "paused"
	case PhaseGraduated:
		return "graduated"
	default:
		return "unknown"
	}
}

// CurveState is the externally visible state of a bonding curve.
type CurveState struct {
	Phase          Phase
	TokensSold     *big.Int
	CurrentStep    uint64
	CurrentPrice   *big.Int
	ReserveBalance *big.Int
	NextStepAt     *big.Int
}

// TokenInfo describes a token registered with the factory.
type TokenInfo struct {
	Address   common.Address
	Vault     common.Address
	Creator   common.Address
	Config    TokenConfig
	CreatedAt time.Time
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
