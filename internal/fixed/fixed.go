// Package fixed holds helpers for 18-decimal fixed-point amounts. CHZ and
// token quantities are carried as *big.Int "wei" values everywhere in the
// engine; this package converts them to and from human decimal strings.
package fixed

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits of every amount.
const Decimals = 18

var one = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// One returns 1.0 in fixed point (10^18).
func One() *big.Int {
	return new(big.Int).Set(one)
}

// Units returns n whole units in fixed point.
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

// Parse converts a decimal string such as "0.0005" to fixed point. More than
// 18 fractional digits is an error rather than a silent truncation.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	shifted := d.Shift(Decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("fixed: parse %q: more than %d decimal places", s, Decimals)
	}
	return shifted.BigInt(), nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders a fixed-point value as a decimal string without trailing
// zeros.
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}

// MulDiv returns floor(a*b/c).
func MulDiv(a, b, c *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, c)
}

// MulDivUp returns ceil(a*b/c) for non-negative operands.
func MulDivUp(a, b, c *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(n, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Bps returns floor(v*bps/10000).
func Bps(v *big.Int, bps uint64) *big.Int {
	return MulDiv(v, new(big.Int).SetUint64(bps), big.NewInt(10_000))
}

// Clone copies v, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
