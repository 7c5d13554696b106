package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"toolplane/internal/session/domain"
)

// PostgresRepository implements Repository using pgxpool with hand-written SQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByJTI returns the session for jti, or nil if not found.
func (r *PostgresRepository) GetByJTI(ctx context.Context, jti string) (*domain.Session, error) {
	const query = `
		SELECT jti, user_id, device, metadata, issued_at, expires_at
		FROM sessions WHERE jti = $1`
	row := r.pool.QueryRow(ctx, query, jti)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var metadataRaw []byte
	err := row.Scan(&s.JTI, &s.UserID, &s.Device, &metadataRaw, &s.IssuedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decoding session metadata: %w", err)
		}
	}
	return &s, nil
}

// Create inserts a new session record.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	metadataRaw, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}
	const query = `
		INSERT INTO sessions (jti, user_id, device, metadata, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.pool.Exec(ctx, query, s.JTI, s.UserID, s.Device, metadataRaw, s.IssuedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// DeleteByJTI removes the session with the given jti and reports whether a row was actually
// removed — callers that need to know who won a race on the same jti rely on this flag.
func (r *PostgresRepository) DeleteByJTI(ctx context.Context, jti string) (bool, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE jti = $1`, jti)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// DeleteByUser removes every session owned by userID.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting sessions by user: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListByUser returns every non-expired session owned by userID, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	const query = `
		SELECT jti, user_id, device, metadata, issued_at, expires_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > now()
		ORDER BY issued_at DESC`
	return r.queryList(ctx, query, userID)
}

// ListActive returns up to limit non-expired sessions with jti greater than cursor.
func (r *PostgresRepository) ListActive(ctx context.Context, cursor string, limit int) ([]*domain.Session, error) {
	const query = `
		SELECT jti, user_id, device, metadata, issued_at, expires_at
		FROM sessions
		WHERE expires_at > now() AND jti > $1
		ORDER BY jti
		LIMIT $2`
	return r.queryList(ctx, query, cursor, limit)
}

func (r *PostgresRepository) queryList(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return sessions, nil
}

// DeleteExpired removes every session whose expires_at is before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
