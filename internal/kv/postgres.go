package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store over pgxpool, for the full profile's distributed Rate Limiter and
// Result Cache backing store, following the same hand-written-SQL repository style as the rest
// of this module's Postgres repositories (internal/session/repository/postgres.go in particular,
// whose upsert-with-row-replacement shape IncrWithExpiry's single atomic statement mirrors).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `SELECT value FROM kv_store WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`
	var value []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting kv entry: %w", err)
	}
	return value, true, nil
}

func (s *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	const query = `
		INSERT INTO kv_store (key, value, count, expires_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`
	if _, err := s.pool.Exec(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("setting kv entry: %w", err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting kv entry: %w", err)
	}
	return nil
}

func (s *Postgres) Scan(ctx context.Context, prefix string) ([]string, error) {
	const query = `
		SELECT key FROM kv_store
		WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > now())`
	rows, err := s.pool.Query(ctx, query, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("scanning kv entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning kv key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating kv keys: %w", err)
	}
	return keys, nil
}

// IncrWithExpiry atomically increments key's counter in one statement: a fresh row starts at 1;
// an existing, unexpired row increments; an existing, expired row resets to 1 — mirroring the
// InMemory implementation's semantics, with the reset decision folded into the upsert's CASE
// instead of a separate expiry check, since two round trips would race under concurrent callers.
func (s *Postgres) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	const query = `
		INSERT INTO kv_store (key, value, count, expires_at)
		VALUES ($1, ''::bytea, 1, $2)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE
				WHEN kv_store.expires_at IS NOT NULL AND kv_store.expires_at < now() THEN 1
				ELSE kv_store.count + 1
			END,
			expires_at = $2
		RETURNING count`
	var count int64
	if err := s.pool.QueryRow(ctx, query, key, expiresAt).Scan(&count); err != nil {
		return 0, fmt.Errorf("incrementing kv counter: %w", err)
	}
	return count, nil
}

var _ Store = (*Postgres)(nil)
