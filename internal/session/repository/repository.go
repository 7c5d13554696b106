package repository

import (
	"context"
	"time"

	"toolplane/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByJTI(ctx context.Context, jti string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// DeleteByJTI removes the session with the given jti and reports whether a row was removed.
	DeleteByJTI(ctx context.Context, jti string) (bool, error)
	// DeleteByUser removes every session owned by userID, returning the count removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// ListByUser returns every non-expired session owned by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// ListActive returns up to limit non-expired sessions with jti greater than cursor
	// (lexicographic keyset pagination), ordered by jti.
	ListActive(ctx context.Context, cursor string, limit int) ([]*domain.Session, error)
	// DeleteExpired removes every session whose expires_at is before now, returning the count
	// removed. Used by the background TTL reaper.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
