package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pumpfight/internal/domain"
	"github.com/alanyoungcy/pumpfight/internal/fixed"
)

// StateCache implements domain.CurveStateCache with one hash per token at
// "curve:{address}". Amounts are stored as decimal wei strings; "ts" is Unix
// nanoseconds.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache creates a StateCache. A zero ttl keeps entries forever.
func NewStateCache(c *Client, ttl time.Duration) *StateCache {
	return &StateCache{rdb: c.Underlying(), ttl: ttl}
}

var _ domain.CurveStateCache = (*StateCache)(nil)

func curveKey(token common.Address) string {
	return "curve:" + token.Hex()
}

// SetState stores the latest state of a token's curve.
func (sc *StateCache) SetState(ctx context.Context, token common.Address, state domain.CurveState, ts time.Time) error {
	key := curveKey(token)
	fields := map[string]any{
		"phase":        strconv.Itoa(int(state.Phase)),
		"tokens_sold":  fixed.Clone(state.TokensSold).String(),
		"step":         strconv.FormatUint(state.CurrentStep, 10),
		"price":        fixed.Clone(state.CurrentPrice).String(),
		"reserve":      fixed.Clone(state.ReserveBalance).String(),
		"next_step_at": fixed.Clone(state.NextStepAt).String(),
		"ts":           strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if sc.ttl > 0 {
		pipe.Expire(ctx, key, sc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set curve state %s: %w", token.Hex(), err)
	}
	return nil
}

// GetState returns the cached state and its timestamp, or domain.ErrNotFound.
func (sc *StateCache) GetState(ctx context.Context, token common.Address) (domain.CurveState, time.Time, error) {
	vals, err := sc.rdb.HGetAll(ctx, curveKey(token)).Result()
	if err != nil {
		return domain.CurveState{}, time.Time{}, fmt.Errorf("redis: get curve state %s: %w", token.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.CurveState{}, time.Time{}, domain.ErrNotFound
	}

	state, ts, err := decodeState(vals)
	if err != nil {
		return domain.CurveState{}, time.Time{}, fmt.Errorf("redis: decode curve state %s: %w", token.Hex(), err)
	}
	return state, ts, nil
}

// GetPrices returns the cached spot price of each token as a decimal CHZ
// string. Tokens with no cache entry are omitted.
func (sc *StateCache) GetPrices(ctx context.Context, tokens []common.Address) (map[common.Address]string, error) {
	if len(tokens) == 0 {
		return map[common.Address]string{}, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make(map[common.Address]*redis.StringCmd, len(tokens))
	for _, t := range tokens {
		cmds[t] = pipe.HGet(ctx, curveKey(t), "price")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	out := make(map[common.Address]string, len(tokens))
	for t, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		wei, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			continue
		}
		out[t] = fixed.Format(wei)
	}
	return out, nil
}

func decodeState(vals map[string]string) (domain.CurveState, time.Time, error) {
	var (
		state domain.CurveState
		err   error
	)
	bigField := func(name string) *big.Int {
		if err != nil {
			return nil
		}
		v, ok := new(big.Int).SetString(vals[name], 10)
		if !ok {
			err = fmt.Errorf("field %s: bad integer %q", name, vals[name])
		}
		return v
	}
	state.TokensSold = bigField("tokens_sold")
	state.CurrentPrice = bigField("price")
	state.ReserveBalance = bigField("reserve")
	state.NextStepAt = bigField("next_step_at")
	if err != nil {
		return domain.CurveState{}, time.Time{}, err
	}

	phase, err := strconv.Atoi(vals["phase"])
	if err != nil {
		return domain.CurveState{}, time.Time{}, fmt.Errorf("field phase: %w", err)
	}
	state.Phase = domain.Phase(phase)

	if state.CurrentStep, err = strconv.ParseUint(vals["step"], 10, 64); err != nil {
		return domain.CurveState{}, time.Time{}, fmt.Errorf("field step: %w", err)
	}
	nanos, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.CurveState{}, time.Time{}, fmt.Errorf("field ts: %w", err)
	}
	return state, time.Unix(0, nanos), nil
}
