package token

import (
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// AntiRugGuard rejects sells that come too soon after the seller's last buy
// or that dump too large a share of the seller's balance at once.
type AntiRugGuard struct {
	cooldown   time.Duration
	maxSellBps uint64
}

// NewAntiRugGuard creates a guard from the token's anti-rug parameters.
func NewAntiRugGuard(cfg domain.AntiRugConfig) AntiRugGuard {
	return AntiRugGuard{cooldown: cfg.SellCooldown, maxSellBps: cfg.MaxSellBps}
}

// Check validates a sell of amount tokens by a holder with the given balance.
// lastBuy is the zero time when the holder never bought from the curve.
func (g AntiRugGuard) Check(balance, amount *big.Int, lastBuy, now time.Time) error {
	if !lastBuy.IsZero() && now.Sub(lastBuy) < g.cooldown {
		return fmt.Errorf("token: sell: %w: %s remaining", domain.ErrSellCooldownActive, g.cooldown-now.Sub(lastBuy))
	}
	if amount.Cmp(fixed.Bps(balance, g.maxSellBps)) > 0 {
		return fmt.Errorf("token: sell: %w", domain.ErrMaxSellPercentageExceeded)
	}
	return nil
}
