package service

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/factory"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// Command arguments as stored in the command log. Amounts are decimal CHZ or
// token strings ("12.5"), parsed with 18-decimal precision on every apply so
// a replay sees exactly what the original call saw.

type CreateTokenArgs struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Kind             string `json:"kind,omitempty"`
	InitialPrice     string `json:"initial_price,omitempty"`
	StepSize         string `json:"step_size,omitempty"`
	Factor           uint64 `json:"factor,omitempty"`
	Increment        string `json:"increment,omitempty"`
	GraduationTarget string `json:"graduation_target,omitempty"`
	MaxSupply        string `json:"max_supply,omitempty"`
	FeePaid          string `json:"fee_paid"`
}

type BuyArgs struct {
	Payment      string `json:"payment"`
	MinTokensOut string `json:"min_tokens_out,omitempty"`
}

type SellArgs struct {
	Amount        string `json:"amount"`
	MinPaymentOut string `json:"min_payment_out,omitempty"`
}

type StakeArgs struct {
	Amount string `json:"amount"`
}

type CreateVoteArgs struct {
	Topic           string   `json:"topic"`
	Options         []string `json:"options"`
	DurationSeconds int64    `json:"duration_seconds"`
	MinStake        string   `json:"min_stake,omitempty"`
}

type CastVoteArgs struct {
	PollID uint64 `json:"poll_id"`
	Option uint64 `json:"option"`
}

type CloseVoteArgs struct {
	PollID uint64 `json:"poll_id"`
}

type CreatePredictionArgs struct {
	Question        string `json:"question"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type PredictArgs struct {
	PredictionID uint64 `json:"prediction_id"`
	Outcome      bool   `json:"outcome"`
}

type ResolvePredictionArgs struct {
	PredictionID uint64 `json:"prediction_id"`
	Outcome      bool   `json:"outcome"`
}

// amount parses a required decimal amount.
func amount(field, s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%s is required: %w", field, domain.ErrInvalidAmount)
	}
	v, err := fixed.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", field, domain.ErrInvalidAmount, err)
	}
	return v, nil
}

// optAmount parses an optional decimal amount; empty means nil.
func optAmount(field, s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return amount(field, s)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

func (a CreateTokenArgs) params() (factory.CreateParams, *big.Int, error) {
	p := factory.CreateParams{
		Name:   a.Name,
		Symbol: a.Symbol,
		Kind:   domain.CurveKind(strings.ToLower(a.Kind)),
		Factor: a.Factor,
	}
	var err error
	for _, f := range []struct {
		dst  **big.Int
		name string
		src  string
	}{
		{&p.InitialPrice, "initial_price", a.InitialPrice},
		{&p.StepSize, "step_size", a.StepSize},
		{&p.Increment, "increment", a.Increment},
		{&p.GraduationTarget, "graduation_target", a.GraduationTarget},
		{&p.MaxSupply, "max_supply", a.MaxSupply},
	} {
		if *f.dst, err = optAmount(f.name, f.src); err != nil {
			return factory.CreateParams{}, nil, err
		}
	}
	fee, err := amount("fee_paid", a.FeePaid)
	if err != nil {
		return factory.CreateParams{}, nil, err
	}
	return p, fee, nil
}
