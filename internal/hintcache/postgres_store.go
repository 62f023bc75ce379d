package hintcache

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists hints in two PostgreSQL tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS mint_tx_hints (
    id BIGSERIAL PRIMARY KEY,
    key BYTEA NOT NULL,
    tx_hash BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS mint_tx_hints_key_idx ON mint_tx_hints (key);

CREATE TABLE IF NOT EXISTS mint_anchors (
    key BYTEA PRIMARY KEY,
    block BIGINT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the tables exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTablesSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) PushHint(ctx context.Context, key []byte, txHash common.Hash) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_tx_hints (key, tx_hash) VALUES ($1, $2)
`, key, txHash.Bytes())
	return err
}

func (p *PostgresStore) Hints(ctx context.Context, key []byte) ([]common.Hash, error) {
	rows, err := p.pool.Query(ctx, `
SELECT tx_hash FROM mint_tx_hints WHERE key = $1 ORDER BY id DESC
`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hints []common.Hash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		hints = append(hints, common.BytesToHash(raw))
	}
	return hints, rows.Err()
}

func (p *PostgresStore) DeleteHints(ctx context.Context, key []byte) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM mint_tx_hints WHERE key = $1`, key)
	return err
}

func (p *PostgresStore) SetAnchor(ctx context.Context, key []byte, block uint64, ttl time.Duration) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mint_anchors (key, block, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING
`, key, int64(block), time.Now().Add(ttl))
	return err
}

func (p *PostgresStore) Anchor(ctx context.Context, key []byte) (uint64, bool, error) {
	row := p.pool.QueryRow(ctx, `
SELECT block, expires_at FROM mint_anchors WHERE key = $1
`, key)

	var block int64
	var expiresAt time.Time
	if err := row.Scan(&block, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if time.Now().After(expiresAt) {
		go p.deleteAnchor(context.Background(), key)
		return 0, false, nil
	}
	return uint64(block), true, nil
}

func (p *PostgresStore) deleteAnchor(ctx context.Context, key []byte) {
	_, _ = p.pool.Exec(ctx, `DELETE FROM mint_anchors WHERE key = $1`, key)
}
