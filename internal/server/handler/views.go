package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
	"github.com/alanyoungcy/pumpfight/internal/service"
)

// Amounts are rendered as decimal strings with up to 18 fractional digits.

type tokenConfigView struct {
	Name                string `json:"name,omitempty"`
	Symbol              string `json:"symbol,omitempty"`
	Kind                string `json:"kind"`
	InitialPrice        string `json:"initial_price"`
	StepSize            string `json:"step_size"`
	Factor              uint64 `json:"factor,omitempty"`
	Increment           string `json:"increment,omitempty"`
	GraduationTarget    string `json:"graduation_target"`
	MaxSupply           string `json:"max_supply"`
	CreatorShareBps     uint64 `json:"creator_share_bps"`
	PlatformFeeBps      uint64 `json:"platform_fee_bps"`
	SellCooldownSeconds int64  `json:"sell_cooldown_seconds"`
	MaxSellBps          uint64 `json:"max_sell_bps"`
}

func newTokenConfigView(c domain.TokenConfig) tokenConfigView {
	v := tokenConfigView{
		Name:                c.Name,
		Symbol:              c.Symbol,
		Kind:                string(c.Rule.Kind),
		InitialPrice:        fixed.Format(c.InitialPrice),
		StepSize:            fixed.Format(c.StepSize),
		GraduationTarget:    fixed.Format(c.GraduationTarget),
		MaxSupply:           fixed.Format(c.MaxSupply),
		CreatorShareBps:     c.CreatorShareBps,
		PlatformFeeBps:      c.PlatformFeeBps,
		SellCooldownSeconds: int64(c.AntiRug.SellCooldown / time.Second),
		MaxSellBps:          c.AntiRug.MaxSellBps,
	}
	switch c.Rule.Kind {
	case domain.CurveMultiplicative:
		v.Factor = c.Rule.Factor
	case domain.CurveAdditive:
		v.Increment = fixed.Format(c.Rule.Increment)
	}
	return v
}

type tokenView struct {
	Address   string          `json:"address"`
	Vault     string          `json:"vault"`
	Creator   string          `json:"creator"`
	Config    tokenConfigView `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

func newTokenView(info domain.TokenInfo) tokenView {
	return tokenView{
		Address:   info.Address.Hex(),
		Vault:     info.Vault.Hex(),
		Creator:   info.Creator.Hex(),
		Config:    newTokenConfigView(info.Config),
		CreatedAt: info.CreatedAt,
	}
}

type stateView struct {
	Phase          string `json:"phase"`
	TokensSold     string `json:"tokens_sold"`
	CurrentStep    uint64 `json:"current_step"`
	CurrentPrice   string `json:"current_price"`
	ReserveBalance string `json:"reserve_balance"`
	NextStepAt     string `json:"next_step_at"`
}

func newStateView(s domain.CurveState) stateView {
	return stateView{
		Phase:          s.Phase.String(),
		TokensSold:     fixed.Format(s.TokensSold),
		CurrentStep:    s.CurrentStep,
		CurrentPrice:   fixed.Format(s.CurrentPrice),
		ReserveBalance: fixed.Format(s.ReserveBalance),
		NextStepAt:     fixed.Format(s.NextStepAt),
	}
}

type payoutView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Reason    string    `json:"reason"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

func newPayoutViews(ps []domain.Payout) []payoutView {
	out := make([]payoutView, 0, len(ps))
	for _, p := range ps {
		out = append(out, payoutView{
			From:      p.From.Hex(),
			To:        p.To.Hex(),
			Amount:    fixed.Format(p.Amount),
			Reason:    string(p.Reason),
			Seq:       p.Seq,
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}

func newEventViews(evs []domain.EventRecord) []service.EventView {
	out := make([]service.EventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, service.NewEventView(ev))
	}
	return out
}

type buyView struct {
	TokensOut     string `json:"tokens_out"`
	CreatorShare  string `json:"creator_share"`
	PlatformFee   string `json:"platform_fee"`
	ReserveAmount string `json:"reserve_amount"`
	NewPrice      string `json:"new_price"`
	StepsCrossed  uint64 `json:"steps_crossed"`
	Graduated     bool   `json:"graduated"`
}

type sellView struct {
	Payment      string `json:"payment"`
	StepsCrossed uint64 `json:"steps_crossed"`
}

type receiptView struct {
	Seq          int64               `json:"seq"`
	CommandID    string              `json:"command_id"`
	Kind         string              `json:"kind"`
	Time         time.Time           `json:"time"`
	Token        string              `json:"token,omitempty"`
	Events       []service.EventView `json:"events"`
	Payouts      []payoutView        `json:"payouts"`
	Created      *tokenView          `json:"created,omitempty"`
	Buy          *buyView            `json:"buy,omitempty"`
	Sell         *sellView           `json:"sell,omitempty"`
	PollID       *uint64             `json:"poll_id,omitempty"`
	PredictionID *uint64             `json:"prediction_id,omitempty"`
}

func newReceiptView(r *service.Receipt) receiptView {
	v := receiptView{
		Seq:          r.Seq,
		CommandID:    r.CommandID,
		Kind:         string(r.Kind),
		Time:         r.Time,
		Events:       newEventViews(r.Events),
		Payouts:      newPayoutViews(r.Payouts),
		PollID:       r.PollID,
		PredictionID: r.PredictionID,
	}
	if r.Token != (common.Address{}) {
		v.Token = r.Token.Hex()
	}
	if r.Info != nil {
		tv := newTokenView(*r.Info)
		v.Created = &tv
	}
	if b := r.Buy; b != nil {
		v.Buy = &buyView{
			TokensOut:     fixed.Format(b.TokensOut),
			CreatorShare:  fixed.Format(b.CreatorShare),
			PlatformFee:   fixed.Format(b.PlatformFee),
			ReserveAmount: fixed.Format(b.ReserveAmount),
			NewPrice:      fixed.Format(b.NewPrice),
			StepsCrossed:  b.StepsCrossed,
			Graduated:     b.Graduated,
		}
	}
	if s := r.Sell; s != nil {
		v.Sell = &sellView{Payment: fixed.Format(s.Payment), StepsCrossed: s.StepsCrossed}
	}
	return v
}

type stakeView struct {
	Amount           string    `json:"amount"`
	StakingStartTime time.Time `json:"staking_start_time,omitzero"`
	LastClaimTime    time.Time `json:"last_claim_time,omitzero"`
	VotingPower      string    `json:"voting_power"`
	TotalStaked      string    `json:"total_staked"`
}

func newStakeView(s service.StakeView) stakeView {
	return stakeView{
		Amount:           fixed.Format(s.Stake.Amount),
		StakingStartTime: s.Stake.StakingStartTime,
		LastClaimTime:    s.Stake.LastClaimTime,
		VotingPower:      fixed.Format(s.VotingPower),
		TotalStaked:      fixed.Format(s.TotalStaked),
	}
}

type pollView struct {
	ID               uint64    `json:"id"`
	Topic            string    `json:"topic"`
	Options          []string  `json:"options"`
	Weights          []string  `json:"weights"`
	Deadline         time.Time `json:"deadline"`
	MinStakeRequired string    `json:"min_stake_required"`
	Active           bool      `json:"active"`
	Voters           int       `json:"voters"`
}

func newPollView(p domain.Poll) pollView {
	weights := make([]string, len(p.OptionWeights))
	for i, w := range p.OptionWeights {
		weights[i] = fixed.Format(w)
	}
	return pollView{
		ID:               p.ID,
		Topic:            p.Topic,
		Options:          p.Options,
		Weights:          weights,
		Deadline:         p.Deadline,
		MinStakeRequired: fixed.Format(p.MinStakeRequired),
		Active:           p.Active,
		Voters:           p.Voters,
	}
}

type predictionView struct {
	ID         uint64    `json:"id"`
	Question   string    `json:"question"`
	Deadline   time.Time `json:"deadline"`
	YesWeight  string    `json:"yes_weight"`
	NoWeight   string    `json:"no_weight"`
	Predictors int       `json:"predictors"`
	Resolved   bool      `json:"resolved"`
	Outcome    *bool     `json:"outcome,omitempty"`
}

func newPredictionView(p domain.Prediction) predictionView {
	v := predictionView{
		ID:         p.ID,
		Question:   p.Question,
		Deadline:   p.Deadline,
		YesWeight:  fixed.Format(p.YesWeight),
		NoWeight:   fixed.Format(p.NoWeight),
		Predictors: p.Predictors,
		Resolved:   p.Resolved,
	}
	if p.Resolved {
		outcome := p.Outcome
		v.Outcome = &outcome
	}
	return v
}
