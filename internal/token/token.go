// Package token implements a bonding-curve token: a holdings ledger whose
// supply is minted on buys and burned on sells at curve prices, with the CHZ
// reserve backing every sell.
//
// A Token is a single-threaded state machine. Callers serialise access and
// pass the current time into every call. Each mutating call validates fully
// before touching state, and restores its pre-call snapshot if a payout
// fails, so a returned error always means nothing changed.
package token

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/curve"
	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// Params configures a new Token.
type Params struct {
	Address  common.Address
	Creator  common.Address
	Platform common.Address // receives the platform fee
	Operator common.Address // may pause, unpause and graduate
	Config   domain.TokenConfig
	Payer    domain.Payer
}

// Token is a bonding-curve token instance.
type Token struct {
	addr     common.Address
	creator  common.Address
	platform common.Address
	operator common.Address
	cfg      domain.TokenConfig
	guard    AntiRugGuard
	payer    domain.Payer

	phase      domain.Phase
	tokensSold *big.Int
	reserve    *big.Int
	balances   map[common.Address]*big.Int
	lastBuy    map[common.Address]time.Time

	busy bool
}

// BuyResult describes a completed purchase.
type BuyResult struct {
	TokensOut     *big.Int
	CreatorShare  *big.Int
	PlatformFee   *big.Int
	ReserveAmount *big.Int
	NewPrice      *big.Int
	StepsCrossed  uint64
	Graduated     bool
	Events        []domain.Event
}

// SellResult describes a completed sale.
type SellResult struct {
	Payment      *big.Int
	StepsCrossed uint64
	Events       []domain.Event
}

// New validates the config and returns an Active token with nothing sold.
func New(p Params) (*Token, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("token: new: %w", err)
	}
	if p.Payer == nil {
		return nil, fmt.Errorf("token: new: payer is required")
	}
	return &Token{
		addr:       p.Address,
		creator:    p.Creator,
		platform:   p.Platform,
		operator:   p.Operator,
		cfg:        p.Config.Clone(),
		guard:      NewAntiRugGuard(p.Config.AntiRug),
		payer:      p.Payer,
		phase:      domain.PhaseActive,
		tokensSold: new(big.Int),
		reserve:    new(big.Int),
		balances:   make(map[common.Address]*big.Int),
		lastBuy:    make(map[common.Address]time.Time),
	}, nil
}

func (t *Token) Address() common.Address { return t.addr }
func (t *Token) Creator() common.Address { return t.creator }

// Config returns a copy of the immutable token config.
func (t *Token) Config() domain.TokenConfig { return t.cfg.Clone() }

// State returns the current curve state.
func (t *Token) State() domain.CurveState {
	step := curve.StepOf(t.cfg, t.tokensSold)
	return domain.CurveState{
		Phase:          t.phase,
		TokensSold:     new(big.Int).Set(t.tokensSold),
		CurrentStep:    step,
		CurrentPrice:   curve.Price(t.cfg, step),
		ReserveBalance: new(big.Int).Set(t.reserve),
		NextStepAt:     curve.NextBoundary(t.cfg, step),
	}
}

// BalanceOf returns the token balance of addr.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	return fixed.Clone(t.balances[addr])
}

// LastBuy returns when addr last bought from the curve, or the zero time.
func (t *Token) LastBuy(addr common.Address) time.Time {
	return t.lastBuy[addr]
}

// CalculateTokensFromCHZ returns the tokens reserve CHZ buys on the curve at
// the current state, before fees. Within a step it inverts
// CalculateCHZFromTokens exactly whenever the cost is a whole number of wei.
func (t *Token) CalculateTokensFromCHZ(reserve *big.Int) (*big.Int, error) {
	tokens, _, err := curve.TokensFromPayment(t.cfg, t.tokensSold, reserve)
	if err != nil {
		return nil, fmt.Errorf("token: tokens from chz: %w", err)
	}
	return tokens, nil
}

// CalculateCHZFromTokens returns the curve cost of tokens at the current
// state, before fees, rounded up.
func (t *Token) CalculateCHZFromTokens(tokens *big.Int) (*big.Int, error) {
	cost, _, err := curve.PaymentFromTokens(t.cfg, t.tokensSold, tokens, curve.RoundUp)
	if err != nil {
		return nil, fmt.Errorf("token: chz from tokens: %w", err)
	}
	return cost, nil
}

// QuoteBuy returns the tokens a Buy with this gross payment would mint.
func (t *Token) QuoteBuy(payment *big.Int) (*big.Int, error) {
	_, _, net := curve.Split(payment, t.cfg.CreatorShareBps, t.cfg.PlatformFeeBps)
	tokens, err := t.CalculateTokensFromCHZ(net)
	if err != nil {
		return nil, fmt.Errorf("token: quote buy: %w", err)
	}
	return tokens, nil
}

// QuoteBuyCost returns the gross payment, fees included, a buyer must send
// to Buy at least tokens.
func (t *Token) QuoteBuyCost(tokens *big.Int) (*big.Int, error) {
	net, err := t.CalculateCHZFromTokens(tokens)
	if err != nil {
		return nil, fmt.Errorf("token: quote buy cost: %w", err)
	}
	if net.Sign() == 0 {
		return net, nil
	}
	return curve.GrossForNet(net, t.cfg.CreatorShareBps, t.cfg.PlatformFeeBps), nil
}

// QuoteSell returns what selling tokens would pay out at the current state.
func (t *Token) QuoteSell(tokens *big.Int) (*big.Int, error) {
	if tokens.Cmp(t.tokensSold) > 0 {
		return nil, fmt.Errorf("token: quote sell: %w", domain.ErrInvalidAmount)
	}
	after := new(big.Int).Sub(t.tokensSold, tokens)
	payment, _, err := curve.PaymentFromTokens(t.cfg, after, tokens, curve.RoundDown)
	if err != nil {
		return nil, fmt.Errorf("token: quote sell: %w", err)
	}
	return payment, nil
}

// Buy spends payment on the curve. Creator share and platform fee are taken
// first; the rest enters the reserve and is converted to tokens.
func (t *Token) Buy(buyer common.Address, payment, minTokensOut *big.Int, now time.Time) (*BuyResult, error) {
	leave, err := t.enter()
	if err != nil {
		return nil, fmt.Errorf("token: buy: %w", err)
	}
	defer leave()

	if err := t.requireActive(); err != nil {
		return nil, fmt.Errorf("token: buy: %w", err)
	}
	if payment == nil || payment.Sign() <= 0 {
		return nil, fmt.Errorf("token: buy: %w", domain.ErrInsufficientPayment)
	}

	creatorShare, platformFee, net := curve.Split(payment, t.cfg.CreatorShareBps, t.cfg.PlatformFeeBps)
	tokensOut, steps, err := curve.TokensFromPayment(t.cfg, t.tokensSold, net)
	if err != nil {
		return nil, fmt.Errorf("token: buy: %w", err)
	}
	if tokensOut.Sign() == 0 {
		return nil, fmt.Errorf("token: buy: %w: payment buys no tokens", domain.ErrInsufficientPayment)
	}
	if minTokensOut != nil && tokensOut.Cmp(minTokensOut) < 0 {
		return nil, fmt.Errorf("token: buy: %w: got %s, want at least %s",
			domain.ErrSlippageExceeded, fixed.Format(tokensOut), fixed.Format(minTokensOut))
	}

	snap := t.save(buyer)

	t.tokensSold.Add(t.tokensSold, tokensOut)
	t.reserve.Add(t.reserve, net)
	t.credit(buyer, tokensOut)
	t.lastBuy[buyer] = now

	state := t.State()
	res := &BuyResult{
		TokensOut:     tokensOut,
		CreatorShare:  creatorShare,
		PlatformFee:   platformFee,
		ReserveAmount: net,
		NewPrice:      state.CurrentPrice,
		StepsCrossed:  steps,
	}
	res.Events = append(res.Events, domain.TokensPurchased{
		Buyer:     buyer,
		Payment:   new(big.Int).Set(payment),
		TokensOut: new(big.Int).Set(tokensOut),
		NewPrice:  state.CurrentPrice,
	})
	if t.reserve.Cmp(t.cfg.GraduationTarget) >= 0 {
		t.phase = domain.PhaseGraduated
		res.Graduated = true
		res.Events = append(res.Events, t.graduatedEvent())
	}

	if err := t.payer.Pay(t.addr, t.creator, creatorShare, domain.PayoutCreatorShare); err != nil {
		t.restore(snap)
		return nil, fmt.Errorf("token: buy: pay creator: %w", err)
	}
	if err := t.payer.Pay(t.addr, t.platform, platformFee, domain.PayoutPlatformFee); err != nil {
		t.restore(snap)
		return nil, fmt.Errorf("token: buy: pay platform: %w", err)
	}

	return res, nil
}

// Sell burns tokenAmount from seller and pays out of the reserve at the
// curve value of the top tokenAmount tokens. Sells carry no fee.
func (t *Token) Sell(seller common.Address, tokenAmount, minPaymentOut *big.Int, now time.Time) (*SellResult, error) {
	leave, err := t.enter()
	if err != nil {
		return nil, fmt.Errorf("token: sell: %w", err)
	}
	defer leave()

	if err := t.requireActive(); err != nil {
		return nil, fmt.Errorf("token: sell: %w", err)
	}
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("token: sell: %w", domain.ErrInvalidAmount)
	}
	balance := t.BalanceOf(seller)
	if balance.Cmp(tokenAmount) < 0 {
		return nil, fmt.Errorf("token: sell: %w", domain.ErrInsufficientBalance)
	}
	if err := t.guard.Check(balance, tokenAmount, t.lastBuy[seller], now); err != nil {
		return nil, err
	}

	after := new(big.Int).Sub(t.tokensSold, tokenAmount)
	payment, steps, err := curve.PaymentFromTokens(t.cfg, after, tokenAmount, curve.RoundDown)
	if err != nil {
		return nil, fmt.Errorf("token: sell: %w", err)
	}
	if minPaymentOut != nil && payment.Cmp(minPaymentOut) < 0 {
		return nil, fmt.Errorf("token: sell: %w: got %s CHZ, want at least %s",
			domain.ErrSlippageExceeded, fixed.Format(payment), fixed.Format(minPaymentOut))
	}
	if t.reserve.Cmp(payment) < 0 {
		return nil, fmt.Errorf("token: sell: %w", domain.ErrInsufficientReserve)
	}

	snap := t.save(seller)

	t.tokensSold.Set(after)
	t.reserve.Sub(t.reserve, payment)
	t.debit(seller, tokenAmount)

	if err := t.payer.Pay(t.addr, seller, payment, domain.PayoutSellProceeds); err != nil {
		t.restore(snap)
		return nil, fmt.Errorf("token: sell: pay seller: %w", err)
	}

	return &SellResult{
		Payment:      payment,
		StepsCrossed: steps,
		Events: []domain.Event{domain.TokensSold{
			Seller:      seller,
			TokenAmount: new(big.Int).Set(tokenAmount),
			Payment:     new(big.Int).Set(payment),
		}},
	}, nil
}

// Transfer moves tokens between holders. The staking vault uses it to take
// custody of staked tokens.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	leave, err := t.enter()
	if err != nil {
		return fmt.Errorf("token: transfer: %w", err)
	}
	defer leave()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: transfer: %w", domain.ErrInvalidAmount)
	}
	if t.BalanceOf(from).Cmp(amount) < 0 {
		return fmt.Errorf("token: transfer: %w", domain.ErrInsufficientBalance)
	}
	t.debit(from, amount)
	t.credit(to, amount)
	return nil
}

// Pause stops trading. Pausing a paused curve is a no-op.
func (t *Token) Pause(caller common.Address) ([]domain.Event, error) {
	leave, err := t.enter()
	if err != nil {
		return nil, fmt.Errorf("token: pause: %w", err)
	}
	defer leave()

	if caller != t.operator {
		return nil, fmt.Errorf("token: pause: %w", domain.ErrUnauthorized)
	}
	switch t.phase {
	case domain.PhaseGraduated:
		return nil, fmt.Errorf("token: pause: %w", domain.ErrCurveGraduated)
	case domain.PhasePaused:
		return nil, nil
	}
	t.phase = domain.PhasePaused
	return []domain.Event{domain.CurvePaused{Operator: caller}}, nil
}

// Unpause resumes trading. Unpausing an active curve is a no-op.
func (t *Token) Unpause(caller common.Address) ([]domain.Event, error) {
	leave, err := t.enter()
	if err != nil {
		return nil, fmt.Errorf("token: unpause: %w", err)
	}
	defer leave()

	if caller != t.operator {
		return nil, fmt.Errorf("token: unpause: %w", domain.ErrUnauthorized)
	}
	switch t.phase {
	case domain.PhaseGraduated:
		return nil, fmt.Errorf("token: unpause: %w", domain.ErrCurveGraduated)
	case domain.PhaseActive:
		return nil, nil
	}
	t.phase = domain.PhaseActive
	return []domain.Event{domain.CurveUnpaused{Operator: caller}}, nil
}

// Graduate ends curve trading before the reserve reaches the target.
func (t *Token) Graduate(caller common.Address) ([]domain.Event, error) {
	leave, err := t.enter()
	if err != nil {
		return nil, fmt.Errorf("token: graduate: %w", err)
	}
	defer leave()

	if caller != t.operator {
		return nil, fmt.Errorf("token: graduate: %w", domain.ErrUnauthorized)
	}
	if t.phase == domain.PhaseGraduated {
		return nil, fmt.Errorf("token: graduate: %w", domain.ErrCurveGraduated)
	}
	t.phase = domain.PhaseGraduated
	return []domain.Event{t.graduatedEvent()}, nil
}

func (t *Token) graduatedEvent() domain.CurveGraduated {
	return domain.CurveGraduated{
		ReserveBalance: new(big.Int).Set(t.reserve),
		TokensSold:     new(big.Int).Set(t.tokensSold),
	}
}

func (t *Token) requireActive() error {
	switch t.phase {
	case domain.PhasePaused:
		return domain.ErrCurvePaused
	case domain.PhaseGraduated:
		return domain.ErrCurveGraduated
	}
	return nil
}

func (t *Token) enter() (func(), error) {
	if t.busy {
		return nil, domain.ErrReentrantCall
	}
	t.busy = true
	return func() { t.busy = false }, nil
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	bal, ok := t.balances[addr]
	if !ok {
		bal = new(big.Int)
		t.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) {
	bal := t.balances[addr]
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(t.balances, addr)
	}
}

// snapshot is the part of the state a single-holder call can change.
type snapshot struct {
	phase      domain.Phase
	tokensSold *big.Int
	reserve    *big.Int
	holder     common.Address
	balance    *big.Int
	lastBuy    time.Time
	hadLastBuy bool
}

func (t *Token) save(holder common.Address) snapshot {
	s := snapshot{
		phase:      t.phase,
		tokensSold: new(big.Int).Set(t.tokensSold),
		reserve:    new(big.Int).Set(t.reserve),
		holder:     holder,
	}
	if bal, ok := t.balances[holder]; ok {
		s.balance = new(big.Int).Set(bal)
	}
	s.lastBuy, s.hadLastBuy = t.lastBuy[holder]
	return s
}

func (t *Token) restore(s snapshot) {
	t.phase = s.phase
	t.tokensSold = s.tokensSold
	t.reserve = s.reserve
	if s.balance == nil {
		delete(t.balances, s.holder)
	} else {
		t.balances[s.holder] = s.balance
	}
	if s.hadLastBuy {
		t.lastBuy[s.holder] = s.lastBuy
	} else {
		delete(t.lastBuy, s.holder)
	}
}
