package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PayoutReason classifies an outgoing CHZ transfer.
type PayoutReason string

const (
	PayoutCreatorShare PayoutReason = "creator_share"
	PayoutPlatformFee  PayoutReason = "platform_fee"
	PayoutSellProceeds PayoutReason = "sell_proceeds"
	PayoutCreationFee  PayoutReason = "creation_fee"
	PayoutFeeRefund    PayoutReason = "fee_refund"
)

// Payer moves CHZ out of an engine instance. It is invoked only after the
// ledger has been updated; an error makes the engine restore its pre-call
// state.
type Payer interface {
	Pay(from, to common.Address, amount *big.Int, reason PayoutReason) error
}

// Payout is one recorded CHZ transfer.
type Payout struct {
	ID        int64
	Seq       int64
	From      common.Address
	To        common.Address
	Amount    *big.Int
	Reason    PayoutReason
	CreatedAt time.Time
}

// PayoutBuffer is a Payer that records payouts in memory until they are
// drained by the caller.
type PayoutBuffer struct {
	pending []Payout
}

func (b *PayoutBuffer) Pay(from, to common.Address, amount *big.Int, reason PayoutReason) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	b.pending = append(b.pending, Payout{
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
		Reason: reason,
	})
	return nil
}

// Drain returns and clears the pending payouts.
func (b *PayoutBuffer) Drain() []Payout {
	out := b.pending
	b.pending = nil
	return out
}
