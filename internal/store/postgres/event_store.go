package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventStore = (*EventStore)(nil)

const eventSelectCols = `seq, contract, token, name, payload, topics, data, signature, created_at`

// InsertBatch stores the events produced by command seq in a single batch.
func (s *EventStore) InsertBatch(ctx context.Context, seq int64, events []domain.EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO events (seq, contract, token, name, payload, topics, data, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	batch := &pgx.Batch{}
	for _, e := range events {
		topics := make([]string, len(e.Topics))
		for i, t := range e.Topics {
			topics[i] = t.Hex()
		}
		batch.Queue(query,
			seq, e.Contract.Hex(), e.Token.Hex(), e.Name, []byte(e.Payload),
			topics, e.Data, e.Signature, e.CreatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByToken returns a token's events, newest first.
func (s *EventStore) ListByToken(ctx context.Context, token common.Address, opts domain.ListOpts) ([]domain.EventRecord, error) {
	query, args := withListOpts(
		`SELECT `+eventSelectCols+` FROM events WHERE token = $1`,
		[]any{token.Hex()}, "created_at", "DESC, id DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by token: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// ListBefore returns events created before the cutoff, oldest first. A
// limit <= 0 returns all of them. Used by the archiver.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE created_at < $1 ORDER BY id ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// DeleteBefore removes events created before the cutoff.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEventRows(rows pgx.Rows) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	for rows.Next() {
		var (
			e               domain.EventRecord
			contract, token string
			payload         []byte
			topics          []string
		)
		if err := rows.Scan(&e.Seq, &contract, &token, &e.Name, &payload,
			&topics, &e.Data, &e.Signature, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Contract = common.HexToAddress(contract)
		e.Token = common.HexToAddress(token)
		e.Payload = payload
		e.Topics = make([]common.Hash, len(topics))
		for i, t := range topics {
			e.Topics[i] = common.HexToHash(t)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return out, nil
}
