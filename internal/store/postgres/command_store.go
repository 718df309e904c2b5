package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// CommandStore implements domain.CommandStore using PostgreSQL.
type CommandStore struct {
	pool *pgxpool.Pool
}

// NewCommandStore creates a new CommandStore backed by the given connection pool.
func NewCommandStore(pool *pgxpool.Pool) *CommandStore {
	return &CommandStore{pool: pool}
}

var _ domain.CommandStore = (*CommandStore)(nil)

// Append writes cmd and returns its assigned sequence number. A second
// command with the same ID fails with domain.ErrAlreadyExists.
func (s *CommandStore) Append(ctx context.Context, cmd domain.Command) (int64, error) {
	args := cmd.Args
	if len(args) == 0 {
		args = []byte("{}")
	}

	const query = `
		INSERT INTO commands (id, kind, token, caller, args, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`
	var seq int64
	err := s.pool.QueryRow(ctx, query,
		cmd.ID, string(cmd.Kind), tokenKey(cmd.Token), cmd.Caller.Hex(), []byte(args), cmd.Time,
	).Scan(&seq)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("postgres: command %s: %w", cmd.ID, domain.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("postgres: append command %s: %w", cmd.Kind, err)
	}
	return seq, nil
}

// ListAfter returns up to limit commands with seq > afterSeq in seq order.
func (s *CommandStore) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.Command, error) {
	const query = `
		SELECT seq, id, kind, token, caller, args, applied_at, created_at
		FROM commands WHERE seq > $1 ORDER BY seq ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list commands: %w", err)
	}
	defer rows.Close()

	var out []domain.Command
	for rows.Next() {
		var (
			c             domain.Command
			kind          string
			token, caller string
			args          []byte
		)
		if err := rows.Scan(&c.Seq, &c.ID, &kind, &token, &caller, &args, &c.Time, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan command: %w", err)
		}
		c.Kind = domain.CommandKind(kind)
		if token != "" {
			c.Token = common.HexToAddress(token)
		}
		c.Caller = common.HexToAddress(caller)
		c.Args = args
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list commands rows: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest assigned sequence number, or 0 for an empty log.
func (s *CommandStore) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM commands`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("postgres: last command seq: %w", err)
	}
	return seq, nil
}

// tokenKey stores the zero address (factory-level commands) as "".
func tokenKey(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
