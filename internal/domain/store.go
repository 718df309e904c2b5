package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TokenStore persists the factory's registry of created tokens.
type TokenStore interface {
	Upsert(ctx context.Context, info TokenInfo) error
	GetByAddress(ctx context.Context, addr common.Address) (TokenInfo, error)
	ListByCreator(ctx context.Context, creator common.Address, opts ListOpts) ([]TokenInfo, error)
	Count(ctx context.Context) (int64, error)
}

// CommandStore is the append-only log of accepted writes.
type CommandStore interface {
	Append(ctx context.Context, cmd Command) (int64, error)
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]Command, error)
	LastSeq(ctx context.Context) (int64, error)
}

// EventStore persists emitted events.
type EventStore interface {
	InsertBatch(ctx context.Context, seq int64, events []EventRecord) error
	ListByToken(ctx context.Context, token common.Address, opts ListOpts) ([]EventRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]EventRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PayoutStore persists CHZ transfers made by the engine.
type PayoutStore interface {
	InsertBatch(ctx context.Context, seq int64, payouts []Payout) error
	ListByRecipient(ctx context.Context, to common.Address, opts ListOpts) ([]Payout, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
