package repository

import (
	"context"

	"toolplane/internal/audit/domain"
)

// Repository defines persistence for audit log entries.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns audit entries newest first, paginated by limit/offset, optionally filtered to
	// a single principal (empty principalID lists across all principals — the admin view).
	List(ctx context.Context, principalID string, limit, offset int) ([]*domain.AuditLog, error)
}
