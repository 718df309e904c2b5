package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a record emitted by a successful engine call. The name doubles as
// the event's ABI name in the log codec.
type Event interface {
	EventName() string
}

type TokensPurchased struct {
	Buyer     common.Address `json:"buyer"`
	Payment   *big.Int       `json:"payment"`
	TokensOut *big.Int       `json:"tokens_out"`
	NewPrice  *big.Int       `json:"new_price"`
}

type TokensSold struct {
	Seller      common.Address `json:"seller"`
	TokenAmount *big.Int       `json:"token_amount"`
	Payment     *big.Int       `json:"payment"`
}

type CurveGraduated struct {
	ReserveBalance *big.Int `json:"reserve_balance"`
	TokensSold     *big.Int `json:"tokens_sold"`
}

type CurvePaused struct {
	Operator common.Address `json:"operator"`
}

type CurveUnpaused struct {
	Operator common.Address `json:"operator"`
}

type Staked struct {
	Staker common.Address `json:"staker"`
	Amount *big.Int       `json:"amount"`
}

type Unstaked struct {
	Staker common.Address `json:"staker"`
	Amount *big.Int       `json:"amount"`
}

type VoteCreated struct {
	PollID   uint64 `json:"poll_id"`
	Topic    string `json:"topic"`
	Deadline int64  `json:"deadline"`
}

type VoteCast struct {
	Voter  common.Address `json:"voter"`
	PollID uint64         `json:"poll_id"`
	Option uint64         `json:"option"`
	Weight *big.Int       `json:"weight"`
}

type VoteClosed struct {
	PollID uint64 `json:"poll_id"`
}

type PredictionCreated struct {
	PredictionID uint64 `json:"prediction_id"`
	Question     string `json:"question"`
	Deadline     int64  `json:"deadline"`
}

type PredictionMade struct {
	Predictor    common.Address `json:"predictor"`
	PredictionID uint64         `json:"prediction_id"`
	Outcome      bool           `json:"outcome"`
	Weight       *big.Int       `json:"weight"`
}

type PredictionResolved struct {
	PredictionID uint64 `json:"prediction_id"`
	Outcome      bool   `json:"outcome"`
}

type TokenCreated struct {
	Token   common.Address `json:"token"`
	Vault   common.Address `json:"vault"`
	Creator common.Address `json:"creator"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
}

func (TokensPurchased) EventName() string    { return "TokensPurchased" }
func (TokensSold) EventName() string         { return "TokensSold" }
func (CurveGraduated) EventName() string     { return "CurveGraduated" }
func (CurvePaused) EventName() string        { return "CurvePaused" }
func (CurveUnpaused) EventName() string      { return "CurveUnpaused" }
func (Staked) EventName() string             { return "Staked" }
func (Unstaked) EventName() string           { return "Unstaked" }
func (VoteCreated) EventName() string        { return "VoteCreated" }
func (VoteCast) EventName() string           { return "VoteCast" }
func (VoteClosed) EventName() string         { return "VoteClosed" }
func (PredictionCreated) EventName() string  { return "PredictionCreated" }
func (PredictionMade) EventName() string     { return "PredictionMade" }
func (PredictionResolved) EventName() string { return "PredictionResolved" }
func (TokenCreated) EventName() string       { return "TokenCreated" }

// EventRecord is a persisted event together with its log encoding.
type EventRecord struct {
	Seq       int64
	Contract  common.Address
	Token     common.Address
	Name      string
	Payload   json.RawMessage
	Topics    []common.Hash
	Data      []byte
	Signature []byte
	CreatedAt time.Time
}
