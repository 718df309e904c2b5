// Package eventlog encodes launchpad events as Ethereum-style logs: topic0
// is the keccak256 of the event signature, indexed addresses follow as
// topics, and the remaining fields are ABI-encoded into the data section.
// Indexers that already understand contract logs can consume the stream
// unchanged.
package eventlog

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

const launchpadABIJSON = `[
{"anonymous":false,"name":"TokensPurchased","type":"event","inputs":[
 {"indexed":true,"name":"buyer","type":"address"},
 {"indexed":false,"name":"payment","type":"uint256"},
 {"indexed":false,"name":"tokensOut","type":"uint256"},
 {"indexed":false,"name":"newPrice","type":"uint256"}]},
{"anonymous":false,"name":"TokensSold","type":"event","inputs":[
 {"indexed":true,"name":"seller","type":"address"},
 {"indexed":false,"name":"tokenAmount","type":"uint256"},
 {"indexed":false,"name":"payment","type":"uint256"}]},
{"anonymous":false,"name":"CurveGraduated","type":"event","inputs":[
 {"indexed":false,"name":"reserveBalance","type":"uint256"},
 {"indexed":false,"name":"tokensSold","type":"uint256"}]},
{"anonymous":false,"name":"CurvePaused","type":"event","inputs":[
 {"indexed":true,"name":"operator","type":"address"}]},
{"anonymous":false,"name":"CurveUnpaused","type":"event","inputs":[
 {"indexed":true,"name":"operator","type":"address"}]},
{"anonymous":false,"name":"Staked","type":"event","inputs":[
 {"indexed":true,"name":"staker","type":"address"},
 {"indexed":false,"name":"amount","type":"uint256"}]},
{"anonymous":false,"name":"Unstaked","type":"event","inputs":[
 {"indexed":true,"name":"staker","type":"address"},
 {"indexed":false,"name":"amount","type":"uint256"}]},
{"anonymous":false,"name":"VoteCreated","type":"event","inputs":[
 {"indexed":false,"name":"pollId","type":"uint64"},
 {"indexed":false,"name":"topic","type":"string"},
 {"indexed":false,"name":"deadline","type":"uint64"}]},
{"anonymous":false,"name":"VoteCast","type":"event","inputs":[
 {"indexed":true,"name":"voter","type":"address"},
 {"indexed":false,"name":"pollId","type":"uint64"},
 {"indexed":false,"name":"option","type":"uint64"},
 {"indexed":false,"name":"weight","type":"uint256"}]},
{"anonymous":false,"name":"VoteClosed","type":"event","inputs":[
 {"indexed":false,"name":"pollId","type":"uint64"}]},
{"anonymous":false,"name":"PredictionCreated","type":"event","inputs":[
 {"indexed":false,"name":"predictionId","type":"uint64"},
 {"indexed":false,"name":"question","type":"string"},
 {"indexed":false,"name":"deadline","type":"uint64"}]},
{"anonymous":false,"name":"PredictionMade","type":"event","inputs":[
 {"indexed":true,"name":"predictor","type":"address"},
 {"indexed":false,"name":"predictionId","type":"uint64"},
 {"indexed":false,"name":"outcome","type":"bool"},
 {"indexed":false,"name":"weight","type":"uint256"}]},
{"anonymous":false,"name":"PredictionResolved","type":"event","inputs":[
 {"indexed":false,"name":"predictionId","type":"uint64"},
 {"indexed":false,"name":"outcome","type":"bool"}]},
{"anonymous":false,"name":"TokenCreated","type":"event","inputs":[
 {"indexed":true,"name":"token","type":"address"},
 {"indexed":true,"name":"vault","type":"address"},
 {"indexed":true,"name":"creator","type":"address"},
 {"indexed":false,"name":"name","type":"string"},
 {"indexed":false,"name":"symbol","type":"string"}]}
]`

// LaunchpadABI is the parsed ABI of every launchpad event.
var LaunchpadABI = mustParse(launchpadABIJSON)

func mustParse(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(fmt.Sprintf("eventlog: parse abi: %v", err))
	}
	return parsed
}

// Topic returns topic0 for the named event.
func Topic(name string) (common.Hash, error) {
	ev, ok := LaunchpadABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("eventlog: unknown event %q", name)
	}
	return ev.ID, nil
}

// Encode builds the log emitted by contract for ev.
func Encode(contract common.Address, ev domain.Event) (*types.Log, error) {
	name := ev.EventName()
	abiEv, ok := LaunchpadABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("eventlog: unknown event %q", name)
	}

	indexed, values := fields(ev)
	topics := make([]common.Hash, 0, 1+len(indexed))
	topics = append(topics, abiEv.ID)
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()))
	}

	data, err := abiEv.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: pack %s: %w", name, err)
	}

	return &types.Log{
		Address: contract,
		Topics:  topics,
		Data:    data,
	}, nil
}

// Decode unpacks a log produced by Encode into a field map keyed by the ABI
// input names. Indexed addresses are returned as common.Address.
func Decode(log *types.Log) (string, map[string]any, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("eventlog: decode: log has no topics")
	}
	abiEv, err := LaunchpadABI.EventByID(log.Topics[0])
	if err != nil {
		return "", nil, fmt.Errorf("eventlog: decode: %w", err)
	}

	out := make(map[string]any)
	if err := abiEv.Inputs.NonIndexed().UnpackIntoMap(out, log.Data); err != nil {
		return "", nil, fmt.Errorf("eventlog: decode %s: %w", abiEv.Name, err)
	}

	i := 0
	for _, in := range abiEv.Inputs {
		if !in.Indexed {
			continue
		}
		if 1+i >= len(log.Topics) {
			return "", nil, fmt.Errorf("eventlog: decode %s: missing topic for %s", abiEv.Name, in.Name)
		}
		out[in.Name] = common.BytesToAddress(log.Topics[1+i].Bytes())
		i++
	}
	return abiEv.Name, out, nil
}

// fields splits ev into its indexed addresses and its ABI data values, both
// in declaration order.
func fields(ev domain.Event) ([]common.Address, []any) {
	switch e := ev.(type) {
	case domain.TokensPurchased:
		return []common.Address{e.Buyer}, []any{e.Payment, e.TokensOut, e.NewPrice}
	case domain.TokensSold:
		return []common.Address{e.Seller}, []any{e.TokenAmount, e.Payment}
	case domain.CurveGraduated:
		return nil, []any{e.ReserveBalance, e.TokensSold}
	case domain.CurvePaused:
		return []common.Address{e.Operator}, nil
	case domain.CurveUnpaused:
		return []common.Address{e.Operator}, nil
	case domain.Staked:
		return []common.Address{e.Staker}, []any{e.Amount}
	case domain.Unstaked:
		return []common.Address{e.Staker}, []any{e.Amount}
	case domain.VoteCreated:
		return nil, []any{e.PollID, e.Topic, uint64(e.Deadline)}
	case domain.VoteCast:
		return []common.Address{e.Voter}, []any{e.PollID, e.Option, e.Weight}
	case domain.VoteClosed:
		return nil, []any{e.PollID}
	case domain.PredictionCreated:
		return nil, []any{e.PredictionID, e.Question, uint64(e.Deadline)}
	case domain.PredictionMade:
		return []common.Address{e.Predictor}, []any{e.PredictionID, e.Outcome, e.Weight}
	case domain.PredictionResolved:
		return nil, []any{e.PredictionID, e.Outcome}
	case domain.TokenCreated:
		return []common.Address{e.Token, e.Vault, e.Creator}, []any{e.Name, e.Symbol}
	}
	return nil, nil
}
