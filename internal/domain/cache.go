package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CurveStateCache holds the latest curve state per token for cheap reads by
// other replicas and dashboards.
type CurveStateCache interface {
	SetState(ctx context.Context, token common.Address, state CurveState, ts time.Time) error
	GetState(ctx context.Context, token common.Address) (CurveState, time.Time, error)
	GetPrices(ctx context.Context, tokens []common.Address) (map[common.Address]string, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// ChannelAllTokens matches every per-token pub/sub channel.
const ChannelAllTokens = "ch:token:*"

// TokenChannel is the pub/sub channel carrying a token's live events.
func TokenChannel(token common.Address) string {
	return "ch:token:" + token.Hex()
}

// EventStream is the bounded stream holding a token's recent events.
func EventStream(token common.Address) string {
	return "events:" + token.Hex()
}
