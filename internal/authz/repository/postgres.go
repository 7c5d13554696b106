package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"toolplane/internal/authz/domain"
)

// PostgresRepository implements Repository using pgxpool with hand-written SQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GrantsFor returns every non-expired grant for userID or any of roles, scoped to resourceType.
// Expiry filtering also happens in the Authorization Engine; the SQL predicate here is an
// optimization, not the sole enforcement point.
func (r *PostgresRepository) GrantsFor(ctx context.Context, userID string, roles []string, resourceType domain.ResourceType) ([]*domain.Grant, error) {
	const query = `
		SELECT id, subject_kind, subject, resource_type, resource_pattern, actions, conditions, granted_at, expires_at
		FROM permission_grants
		WHERE resource_type = $1
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (
		    (subject_kind = 'user' AND subject = $2)
		    OR (subject_kind = 'role' AND subject = ANY($3))
		  )`
	rows, err := r.pool.Query(ctx, query, resourceType, userID, roles)
	if err != nil {
		return nil, fmt.Errorf("querying grants: %w", err)
	}
	defer rows.Close()

	var grants []*domain.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grant rows: %w", err)
	}
	if grants == nil {
		grants = []*domain.Grant{}
	}
	return grants, nil
}

func scanGrant(row pgx.Row) (*domain.Grant, error) {
	var g domain.Grant
	var actions []string
	err := row.Scan(&g.ID, &g.SubjectKind, &g.Subject, &g.ResourceType, &g.ResourcePattern, &actions, &g.Conditions, &g.GrantedAt, &g.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning grant: %w", err)
	}
	g.Actions = make([]domain.Action, len(actions))
	for i, a := range actions {
		g.Actions[i] = domain.Action(a)
	}
	return &g, nil
}

// Upsert inserts g or replaces the grant already sharing its (subject_kind, subject,
// resource_type, resource_pattern) key.
func (r *PostgresRepository) Upsert(ctx context.Context, g *domain.Grant) error {
	actions := make([]string, len(g.Actions))
	for i, a := range g.Actions {
		actions[i] = string(a)
	}
	const query = `
		INSERT INTO permission_grants (id, subject_kind, subject, resource_type, resource_pattern, actions, conditions, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_kind, subject, resource_type, resource_pattern)
		DO UPDATE SET actions = EXCLUDED.actions, conditions = EXCLUDED.conditions,
		              granted_at = EXCLUDED.granted_at, expires_at = EXCLUDED.expires_at`
	_, err := r.pool.Exec(ctx, query, g.ID, g.SubjectKind, g.Subject, g.ResourceType, g.ResourcePattern, actions, g.Conditions, g.GrantedAt, g.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upserting grant: %w", err)
	}
	return nil
}

// Revoke deletes the grant with the given id. No-op if absent.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM permission_grants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoking grant: %w", err)
	}
	return nil
}

// ListAll returns every grant, paginated, for the admin surface's list_permissions operation.
func (r *PostgresRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Grant, error) {
	const query = `
		SELECT id, subject_kind, subject, resource_type, resource_pattern, actions, conditions, granted_at, expires_at
		FROM permission_grants
		ORDER BY granted_at DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var grants []*domain.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grant rows: %w", err)
	}
	if grants == nil {
		grants = []*domain.Grant{}
	}
	return grants, nil
}
