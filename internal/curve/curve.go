// Package curve implements step-function bonding-curve pricing: the price
// function, exact conversion between CHZ and tokens across step boundaries,
// and the buy-side fee split.
//
// Price is constant within a step of StepSize tokens. Crossing a boundary
// moves to the next price, so every conversion walks step by step and never
// prices a whole order at a single rate.
package curve

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// Rounding selects how sub-wei remainders of a cost are resolved.
type Rounding int

const (
	// RoundDown favours the payer of the reserve. Used for sell payouts.
	RoundDown Rounding = iota
	// RoundUp favours the reserve. Used when quoting what a buyer must pay.
	RoundUp
)

// Price returns the price of one whole token at the given step.
func Price(cfg domain.TokenConfig, step uint64) *big.Int {
	switch cfg.Rule.Kind {
	case domain.CurveAdditive:
		inc := new(big.Int).Mul(cfg.Rule.Increment, new(big.Int).SetUint64(step))
		return inc.Add(inc, cfg.InitialPrice)
	default:
		f := new(big.Int).Exp(new(big.Int).SetUint64(cfg.Rule.Factor), new(big.Int).SetUint64(step), nil)
		return f.Mul(f, cfg.InitialPrice)
	}
}

// StepOf returns floor(tokensSold / stepSize).
func StepOf(cfg domain.TokenConfig, tokensSold *big.Int) uint64 {
	return new(big.Int).Quo(tokensSold, cfg.StepSize).Uint64()
}

// NextBoundary returns the tokensSold value at which the next step begins.
func NextBoundary(cfg domain.TokenConfig, step uint64) *big.Int {
	b := new(big.Int).SetUint64(step + 1)
	return b.Mul(b, cfg.StepSize)
}

// cost returns the price of qty tokens at price, rounded as requested.
func cost(qty, price *big.Int, r Rounding) *big.Int {
	if r == RoundUp {
		return fixed.MulDivUp(qty, price, fixed.One())
	}
	return fixed.MulDiv(qty, price, fixed.One())
}

// TokensFromPayment returns how many tokens the payment buys starting at
// tokensSold, and how many step boundaries the purchase crosses. The part of
// the payment that cannot buy a further whole wei of token stays unspent.
// A payment that would exhaust MaxSupply with funds left over fails with
// ErrSupplyCapExceeded.
func TokensFromPayment(cfg domain.TokenConfig, tokensSold, payment *big.Int) (*big.Int, uint64, error) {
	out := new(big.Int)
	if payment == nil || payment.Sign() <= 0 {
		return out, 0, nil
	}

	sold := new(big.Int).Set(tokensSold)
	remaining := new(big.Int).Set(payment)
	startStep := StepOf(cfg, sold)

	for remaining.Sign() > 0 {
		step := StepOf(cfg, sold)
		price := Price(cfg, step)

		boundary := NextBoundary(cfg, step)
		if boundary.Cmp(cfg.MaxSupply) > 0 {
			boundary.Set(cfg.MaxSupply)
		}
		room := new(big.Int).Sub(boundary, sold)
		if room.Sign() <= 0 {
			if fixed.MulDiv(remaining, fixed.One(), price).Sign() == 0 {
				break
			}
			return nil, 0, fmt.Errorf("curve: tokens from payment: %w", domain.ErrSupplyCapExceeded)
		}

		stepCost := cost(room, price, RoundUp)
		if remaining.Cmp(stepCost) >= 0 {
			out.Add(out, room)
			sold.Add(sold, room)
			remaining.Sub(remaining, stepCost)
			continue
		}

		qty := fixed.MulDiv(remaining, fixed.One(), price)
		if qty.Sign() == 0 {
			break
		}
		out.Add(out, qty)
		sold.Add(sold, qty)
		break
	}

	return out, StepOf(cfg, sold) - startStep, nil
}

// PaymentFromTokens returns the CHZ value of tokens taken from the curve
// starting at tokensSold, and the number of step boundaries crossed. Callers
// pricing a sell pass the post-sell tokensSold so the value is taken from the
// top of the curve.
func PaymentFromTokens(cfg domain.TokenConfig, tokensSold, tokens *big.Int, r Rounding) (*big.Int, uint64, error) {
	out := new(big.Int)
	if tokens == nil || tokens.Sign() <= 0 {
		return out, 0, nil
	}
	if tokensSold.Sign() < 0 {
		return nil, 0, fmt.Errorf("curve: payment from tokens: %w", domain.ErrInvalidAmount)
	}

	end := new(big.Int).Add(tokensSold, tokens)
	if end.Cmp(cfg.MaxSupply) > 0 {
		return nil, 0, fmt.Errorf("curve: payment from tokens: %w", domain.ErrSupplyCapExceeded)
	}

	sold := new(big.Int).Set(tokensSold)
	startStep := StepOf(cfg, sold)
	for sold.Cmp(end) < 0 {
		step := StepOf(cfg, sold)
		sub := fixed.Min(new(big.Int).Sub(NextBoundary(cfg, step), sold), new(big.Int).Sub(end, sold))
		out.Add(out, cost(sub, Price(cfg, step), r))
		sold.Add(sold, sub)
	}

	return out, StepOf(cfg, end) - startStep, nil
}

// Split divides a buy payment into creator share, platform fee and reserve
// contribution. The reserve takes the rounding remainder so the three parts
// always sum to payment.
func Split(payment *big.Int, creatorBps, platformBps uint64) (creator, platform, reserve *big.Int) {
	creator = fixed.Bps(payment, creatorBps)
	platform = fixed.Bps(payment, platformBps)
	reserve = new(big.Int).Sub(payment, creator)
	reserve.Sub(reserve, platform)
	return creator, platform, reserve
}

// GrossForNet returns the smallest payment whose reserve part after Split is
// at least net.
func GrossForNet(net *big.Int, creatorBps, platformBps uint64) *big.Int {
	keep := new(big.Int).SetUint64(domain.BpsDenominator - creatorBps - platformBps)
	return fixed.MulDivUp(net, big.NewInt(domain.BpsDenominator), keep)
}
