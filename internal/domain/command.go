package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CommandKind names a state-changing launchpad call.
type CommandKind string

const (
	CmdCreateToken       CommandKind = "create_token"
	CmdBuy               CommandKind = "buy"
	CmdSell              CommandKind = "sell"
	CmdPause             CommandKind = "pause"
	CmdUnpause           CommandKind = "unpause"
	CmdGraduate          CommandKind = "graduate"
	CmdStake             CommandKind = "stake"
	CmdUnstake           CommandKind = "unstake"
	CmdCreateVote        CommandKind = "create_vote"
	CmdCastVote          CommandKind = "cast_vote"
	CmdCloseVote         CommandKind = "close_vote"
	CmdCreatePrediction  CommandKind = "create_prediction"
	CmdPredict           CommandKind = "predict"
	CmdResolvePrediction CommandKind = "resolve_prediction"
)

// Command is one accepted write. Replaying the command log in Seq order
// rebuilds the exact engine state because Time is recorded with each entry.
type Command struct {
	Seq       int64
	ID        string
	Kind      CommandKind
	Token     common.Address
	Caller    common.Address
	Args      json.RawMessage
	Time      time.Time
	CreatedAt time.Time
}
