package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"toolplane/internal/audit/domain"
)

// PostgresRepository implements Repository using pgxpool with hand-written SQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a new audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	const query = `
		INSERT INTO audit_log (id, principal, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.PrincipalID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit log entry: %w", err)
	}
	return nil
}

// List returns audit entries newest first, optionally filtered to principalID.
func (r *PostgresRepository) List(ctx context.Context, principalID string, limit, offset int) ([]*domain.AuditLog, error) {
	var rows pgx.Rows
	var err error
	if principalID == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, principal, action, resource, ip, metadata, created_at
			FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, principal, action, resource, ip, metadata, created_at
			FROM audit_log WHERE principal = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, principalID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.PrincipalID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("scanning audit log row: %w", err)
		}
		entries = append(entries, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log rows: %w", err)
	}
	if entries == nil {
		entries = []*domain.AuditLog{}
	}
	return entries, nil
}
