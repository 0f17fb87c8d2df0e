/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package mediacache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS media_cache (
	key       TEXT PRIMARY KEY,
	data      BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps cached media in a single bytea table, so several
// servers can share one warm cache.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the cache table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to media cache: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping media cache: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create media cache table: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM media_cache WHERE key = $1`, key).Scan(&data)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}

	return data, true, nil
}

func (p *Postgres) Put(ctx context.Context, key string, data []byte) error {
	key = NormalizeKey(key)
	if key == "" {
		return ErrEmptyKey
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO media_cache (key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, stored_at = now()`,
		key, data)

	return err
}

func (p *Postgres) Close() {
	p.pool.Close()
}
