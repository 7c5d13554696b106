package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"toolplane/internal/user/domain"
)

// PostgresRepository implements Repository using pgxpool. There is no sqlc-generated query
// layer in this module; queries are written by hand against the users table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by the given connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `
		SELECT id, email, password_hash, roles, active, created_at, updated_at
		FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail returns the user for email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
		SELECT id, email, password_hash, roles, active, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Roles, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// Create inserts a new user record. u.ID, CreatedAt, and UpdatedAt must already be set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	const query = `
		INSERT INTO users (id, email, password_hash, roles, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Email, u.PasswordHash, u.Roles, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// UpdateRoles replaces the role set for the user with the given id.
func (r *PostgresRepository) UpdateRoles(ctx context.Context, id string, roles []string) error {
	const query = `UPDATE users SET roles = $2, updated_at = now() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, roles)
	if err != nil {
		return fmt.Errorf("updating roles: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the active flag for the user with the given id.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("updating active flag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns users whose email contains query, ordered by email, paginated.
func (r *PostgresRepository) Search(ctx context.Context, query string, limit, offset int) ([]*domain.User, error) {
	const sql = `
		SELECT id, email, password_hash, roles, active, created_at, updated_at
		FROM users
		WHERE lower(email) LIKE '%' || lower($1) || '%'
		ORDER BY email
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, sql, strings.TrimSpace(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Roles, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	if users == nil {
		users = []*domain.User{}
	}
	return users, nil
}

// ErrNotFound is returned by mutating methods when no row matches the given id.
var ErrNotFound = errors.New("user not found")
