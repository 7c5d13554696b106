// Package service implements the Session Store: creation, lookup, and revocation of refresh
// credential records, plus a background reaper that clears expired rows.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"toolplane/internal/session/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository is the subset of session persistence the store needs.
type Repository interface {
	GetByJTI(ctx context.Context, jti string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	DeleteByJTI(ctx context.Context, jti string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	ListActive(ctx context.Context, cursor string, limit int) ([]*domain.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store implements the Session Store operations described in SPEC_FULL.md §4.2.
type Store struct {
	repo Repository
}

// NewStore returns a Store backed by repo.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// Create persists a new session record for a freshly issued refresh credential.
func (s *Store) Create(ctx context.Context, jti, userID, device string, metadata map[string]string, issuedAt, expiresAt time.Time) error {
	return s.repo.Create(ctx, &domain.Session{
		JTI:       jti,
		UserID:    userID,
		Device:    device,
		Metadata:  metadata,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
}

// Get returns the session for jti. Returns ErrSessionNotFound if absent or expired.
func (s *Store) Get(ctx context.Context, jti string) (*domain.Session, error) {
	sess, err := s.repo.GetByJTI(ctx, jti)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Expired(time.Now().UTC()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Revoke deletes the session identified by jti. No-op if it does not exist.
func (s *Store) Revoke(ctx context.Context, jti string) error {
	_, err := s.repo.DeleteByJTI(ctx, jti)
	return err
}

// RevokeIfPresent deletes the session identified by jti and reports whether it was present. Used
// by the Credential Service's rotate to determine the winner when two rotate calls race on the
// same refresh credential.
func (s *Store) RevokeIfPresent(ctx context.Context, jti string) (bool, error) {
	return s.repo.DeleteByJTI(ctx, jti)
}

// RevokeAllForUser deletes every session owned by userID and returns the count removed.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteByUser(ctx, userID)
}

// ListByUser returns every active session owned by userID.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListActive returns up to limit active sessions after cursor, for the admin surface's
// list_active_sessions operation.
func (s *Store) ListActive(ctx context.Context, cursor string, limit int) ([]*domain.Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListActive(ctx, cursor, limit)
}

// RunReaper deletes expired sessions every interval until ctx is cancelled. Intended to run as a
// single long-lived goroutine from cmd/worker.
func (s *Store) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("session reaper: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session reaper: removed %d expired sessions", n)
			}
		}
	}
}
