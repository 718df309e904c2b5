package vault

import (
	"math/big"
	"time"
)

const day = 24 * time.Hour

// multiplier breakpoints: staking age -> multiplier, interpolated linearly.
var breakpoints = []struct {
	age  time.Duration
	mult int64
}{
	{0, 1},
	{30 * day, 2},
	{90 * day, 3},
	{365 * day, 5},
}

// VotingPower returns amount scaled by the time-weighted multiplier for a
// stake that started at start. The multiplier grows linearly from 1x at 0
// days to 2x at 30, 3x at 90 and 5x at 365 days, and stays at 5x after.
// Integer arithmetic on whole seconds keeps the result deterministic.
func VotingPower(amount *big.Int, start, now time.Time) *big.Int {
	if amount == nil || amount.Sign() <= 0 || start.IsZero() {
		return new(big.Int)
	}
	age := now.Sub(start)
	if age < 0 {
		age = 0
	}

	last := breakpoints[len(breakpoints)-1]
	if age >= last.age {
		return new(big.Int).Mul(amount, big.NewInt(last.mult))
	}

	for i := 1; i < len(breakpoints); i++ {
		lo, hi := breakpoints[i-1], breakpoints[i]
		if age >= hi.age {
			continue
		}
		// amount * (lo.mult*span + (hi.mult-lo.mult)*(age-lo.age)) / span
		span := int64((hi.age - lo.age) / time.Second)
		into := int64((age - lo.age) / time.Second)
		num := big.NewInt(lo.mult*span + (hi.mult-lo.mult)*into)
		out := new(big.Int).Mul(amount, num)
		return out.Quo(out, big.NewInt(span))
	}
	return new(big.Int).Set(amount)
}
