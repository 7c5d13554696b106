package repository

import (
	"context"

	"toolplane/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateRoles(ctx context.Context, id string, roles []string) error
	SetActive(ctx context.Context, id string, active bool) error
	// Search returns users whose email contains query (case-insensitive), ordered by email,
	// paginated with limit/offset.
	Search(ctx context.Context, query string, limit, offset int) ([]*domain.User, error)
}
