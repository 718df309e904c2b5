package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL. Amounts are
// NUMERIC(78,0) wei values and travel as decimal text.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

var _ domain.PayoutStore = (*PayoutStore)(nil)

// InsertBatch records the transfers made while applying command seq.
func (s *PayoutStore) InsertBatch(ctx context.Context, seq int64, payouts []domain.Payout) error {
	if len(payouts) == 0 {
		return nil
	}

	const query = `
		INSERT INTO payouts (seq, sender, recipient, amount, reason, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)`

	batch := &pgx.Batch{}
	for _, p := range payouts {
		batch.Queue(query, seq, p.From.Hex(), p.To.Hex(), p.Amount.String(), string(p.Reason), p.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range payouts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert payout batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByRecipient returns transfers to addr, newest first.
func (s *PayoutStore) ListByRecipient(ctx context.Context, to common.Address, opts domain.ListOpts) ([]domain.Payout, error) {
	query, args := withListOpts(
		`SELECT id, seq, sender, recipient, amount::text, reason, created_at FROM payouts WHERE recipient = $1`,
		[]any{to.Hex()}, "created_at", "DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		var (
			p                    domain.Payout
			from, recipient, amt string
			reason               string
		)
		if err := rows.Scan(&p.ID, &p.Seq, &from, &recipient, &amt, &reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		amount, ok := new(big.Int).SetString(amt, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: payout %d: bad amount %q", p.ID, amt)
		}
		p.From = common.HexToAddress(from)
		p.To = common.HexToAddress(recipient)
		p.Amount = amount
		p.Reason = domain.PayoutReason(reason)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list payouts rows: %w", err)
	}
	return out, nil
}
