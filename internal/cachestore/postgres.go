package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hranalytics/explaind/internal/api"
)

// PostgresStore keeps the cached explanation in a single-row Postgres table.
// Writes upsert atomically, so concurrent savers cannot tear the entry.
//
// Schema:
//
//	CREATE TABLE explain_cache (
//	  cache_key VARCHAR(64) PRIMARY KEY,
//	  entry JSONB NOT NULL,
//	  expires_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

const pgCacheKey = "explain:global"

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres pool creation failed: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Load(ctx context.Context) (*api.GlobalExplanation, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT entry FROM explain_cache WHERE cache_key = $1 AND expires_at > NOW()`,
		pgCacheKey,
	).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres SELECT failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, nil // corrupt: cache miss
	}

	if entry.Expired(time.Now()) {
		return nil, nil
	}

	return entry.Explanation, nil
}

func (p *PostgresStore) Save(ctx context.Context, explanation *api.GlobalExplanation) error {
	data, err := json.Marshal(NewEntry(explanation))
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO explain_cache (cache_key, entry, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET entry = $2, expires_at = $3`,
		pgCacheKey, data, time.Now().Add(TTL),
	)
	if err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM explain_cache WHERE cache_key = $1`, pgCacheKey)
	if err != nil {
		return fmt.Errorf("postgres DELETE failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
