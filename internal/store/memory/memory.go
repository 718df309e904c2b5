// Package memory implements the domain stores in process memory. It backs
// the "memory" storage mode for local runs and the service tests.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// Store holds every table. The typed accessors return views implementing the
// individual domain interfaces.
type Store struct {
	mu       sync.Mutex
	tokens   map[common.Address]domain.TokenInfo
	commands []domain.Command
	cmdIDs   map[string]bool
	events   []domain.EventRecord
	payouts  []domain.Payout
	audit    []domain.AuditEntry

	// FailAppend makes the next Append calls fail with this error.
	FailAppend error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tokens: make(map[common.Address]domain.TokenInfo),
		cmdIDs: make(map[string]bool),
	}
}

type (
	tokenStore   struct{ *Store }
	commandStore struct{ *Store }
	eventStore   struct{ *Store }
	payoutStore  struct{ *Store }
	auditStore   struct{ *Store }
)

var (
	_ domain.TokenStore   = tokenStore{}
	_ domain.CommandStore = commandStore{}
	_ domain.EventStore   = eventStore{}
	_ domain.PayoutStore  = payoutStore{}
	_ domain.AuditStore   = auditStore{}
)

func (s *Store) Tokens() domain.TokenStore     { return tokenStore{s} }
func (s *Store) Commands() domain.CommandStore { return commandStore{s} }
func (s *Store) Events() domain.EventStore     { return eventStore{s} }
func (s *Store) Payouts() domain.PayoutStore   { return payoutStore{s} }
func (s *Store) Audit() domain.AuditStore      { return auditStore{s} }

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func (s tokenStore) Upsert(_ context.Context, info domain.TokenInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.tokens[info.Address]; ok {
		info.CreatedAt = old.CreatedAt
	}
	info.Config = info.Config.Clone()
	s.tokens[info.Address] = info
	return nil
}

func (s tokenStore) GetByAddress(_ context.Context, addr common.Address) (domain.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.tokens[addr]
	if !ok {
		return domain.TokenInfo{}, fmt.Errorf("memory: token %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return info, nil
}

func (s tokenStore) ListByCreator(_ context.Context, creator common.Address, opts domain.ListOpts) ([]domain.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TokenInfo
	for _, info := range s.tokens {
		if info.Creator == creator && inRange(info.CreatedAt, opts) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, opts), nil
}

func (s tokenStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.tokens)), nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (s commandStore) Append(_ context.Context, cmd domain.Command) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return 0, s.FailAppend
	}
	if s.cmdIDs[cmd.ID] {
		return 0, fmt.Errorf("memory: command %s: %w", cmd.ID, domain.ErrAlreadyExists)
	}
	cmd.Seq = int64(len(s.commands)) + 1
	cmd.CreatedAt = time.Now().UTC()
	cmd.Args = append([]byte(nil), cmd.Args...)
	s.commands = append(s.commands, cmd)
	s.cmdIDs[cmd.ID] = true
	return cmd.Seq, nil
}

func (s commandStore) ListAfter(_ context.Context, afterSeq int64, limit int) ([]domain.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Command
	for _, c := range s.commands {
		if c.Seq <= afterSeq {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s commandStore) LastSeq(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.commands)), nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (s eventStore) InsertBatch(_ context.Context, seq int64, events []domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		ev.Seq = seq
		s.events = append(s.events, ev)
	}
	return nil
}

func (s eventStore) ListByToken(_ context.Context, token common.Address, opts domain.ListOpts) ([]domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventRecord
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if ev.Token == token && inRange(ev.CreatedAt, opts) {
			out = append(out, ev)
		}
	}
	return page(out, opts), nil
}

func (s eventStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EventRecord
	for _, ev := range s.events {
		if !ev.CreatedAt.Before(before) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s eventStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var n int64
	for _, ev := range s.events {
		if ev.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return n, nil
}

// ---------------------------------------------------------------------------
// Payouts
// ---------------------------------------------------------------------------

func (s payoutStore) InsertBatch(_ context.Context, seq int64, payouts []domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payouts {
		p.ID = int64(len(s.payouts)) + 1
		p.Seq = seq
		p.Amount = new(big.Int).Set(p.Amount)
		s.payouts = append(s.payouts, p)
	}
	return nil
}

func (s payoutStore) ListByRecipient(_ context.Context, to common.Address, opts domain.ListOpts) ([]domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payout
	for i := len(s.payouts) - 1; i >= 0; i-- {
		p := s.payouts[i]
		if p.To == to && inRange(p.CreatedAt, opts) {
			out = append(out, p)
		}
	}
	return page(out, opts), nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

func (s auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, domain.AuditEntry{
		ID:        int64(len(s.audit)) + 1,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s auditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		if inRange(s.audit[i].CreatedAt, opts) {
			out = append(out, s.audit[i])
		}
	}
	return page(out, opts), nil
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
