package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpfight/internal/domain"
)

// TokenStore implements domain.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

var _ domain.TokenStore = (*TokenStore)(nil)

const tokenSelectCols = `address, vault, creator, config, created_at`

// Upsert inserts or refreshes the registry row for info.Address.
func (s *TokenStore) Upsert(ctx context.Context, info domain.TokenInfo) error {
	cfgJSON, err := json.Marshal(info.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal token config: %w", err)
	}

	const query = `
		INSERT INTO tokens (address, vault, creator, name, symbol, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			vault = EXCLUDED.vault,
			config = EXCLUDED.config`
	_, err = s.pool.Exec(ctx, query,
		info.Address.Hex(), info.Vault.Hex(), info.Creator.Hex(),
		info.Config.Name, info.Config.Symbol, cfgJSON, info.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert token %s: %w", info.Address.Hex(), err)
	}
	return nil
}

// GetByAddress returns the registry row for addr or domain.ErrNotFound.
func (s *TokenStore) GetByAddress(ctx context.Context, addr common.Address) (domain.TokenInfo, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenSelectCols+` FROM tokens WHERE address = $1`, addr.Hex())
	info, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TokenInfo{}, fmt.Errorf("postgres: token %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("postgres: get token %s: %w", addr.Hex(), err)
	}
	return info, nil
}

// ListByCreator returns tokens launched by creator, oldest first.
func (s *TokenStore) ListByCreator(ctx context.Context, creator common.Address, opts domain.ListOpts) ([]domain.TokenInfo, error) {
	query, args := withListOpts(
		`SELECT `+tokenSelectCols+` FROM tokens WHERE creator = $1`,
		[]any{creator.Hex()}, "created_at", "ASC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tokens by creator: %w", err)
	}
	defer rows.Close()

	var out []domain.TokenInfo
	for rows.Next() {
		info, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tokens rows: %w", err)
	}
	return out, nil
}

// Count returns the number of registered tokens.
func (s *TokenStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count tokens: %w", err)
	}
	return n, nil
}

func scanToken(row pgx.Row) (domain.TokenInfo, error) {
	var (
		info                 domain.TokenInfo
		addr, vault, creator string
		cfgJSON              []byte
	)
	if err := row.Scan(&addr, &vault, &creator, &cfgJSON, &info.CreatedAt); err != nil {
		return domain.TokenInfo{}, err
	}
	if err := json.Unmarshal(cfgJSON, &info.Config); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("unmarshal config: %w", err)
	}
	info.Address = common.HexToAddress(addr)
	info.Vault = common.HexToAddress(vault)
	info.Creator = common.HexToAddress(creator)
	return info, nil
}
