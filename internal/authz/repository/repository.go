package repository

import (
	"context"

	"toolplane/internal/authz/domain"
)

// Repository defines persistence for permission grants.
type Repository interface {
	// GrantsFor returns every non-expired grant whose subject is userID or one of roles, for the
	// given resource type.
	GrantsFor(ctx context.Context, userID string, roles []string, resourceType domain.ResourceType) ([]*domain.Grant, error)
	// Upsert inserts a grant or replaces the existing one sharing (subject_kind, subject,
	// resource_type, resource_pattern), per spec.md's grant_permission idempotence invariant.
	Upsert(ctx context.Context, g *domain.Grant) error
	Revoke(ctx context.Context, id string) error
	ListAll(ctx context.Context, limit, offset int) ([]*domain.Grant, error)
}
