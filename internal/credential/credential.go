// Package credential implements the Credential Service (C1): minting, verifying, rotating, and
// revoking access and refresh credentials.
package credential

import (
	"context"
	"errors"
	"log"
	"time"

	"toolplane/internal/security"
	sessiondomain "toolplane/internal/session/domain"
	sessionservice "toolplane/internal/session/service"
)

// ErrAuthentication is the single externally visible error for every credential failure —
// signature mismatch, expiry, wrong kind, or a missing/revoked jti are deliberately not
// distinguished so a caller cannot probe which one occurred (spec.md §4.1 failure semantics).
var ErrAuthentication = errors.New("authentication failed")

// Principal identifies the caller a verified access credential represents.
type Principal struct {
	UserID string
	Email  string
	Roles  []string
}

// RefreshRecord is the result of a successful verify_refresh: the refresh credential's claims
// joined with its Session Store record.
type RefreshRecord struct {
	JTI       string
	UserID    string
	Device    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserLike is the subset of a user record the service needs to mint credentials for.
type UserLike struct {
	ID    string
	Email string
	Roles []string
}

// SessionStore is the subset of the Session Store the Credential Service drives.
type SessionStore interface {
	Create(ctx context.Context, jti, userID, device string, metadata map[string]string, issuedAt, expiresAt time.Time) error
	Get(ctx context.Context, jti string) (*sessiondomain.Session, error)
	RevokeIfPresent(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// Service implements mint/verify/rotate/revoke over a TokenProvider and a Session Store.
type Service struct {
	tokens   *security.TokenProvider
	sessions SessionStore
}

// NewService returns a credential Service. accessTTL/refreshTTL are configured on tokens itself.
func NewService(tokens *security.TokenProvider, sessions SessionStore) *Service {
	return &Service{tokens: tokens, sessions: sessions}
}

// MintAccess issues a stateless access credential for user. No Session Store interaction.
func (s *Service) MintAccess(user UserLike) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = s.tokens.IssueAccess(user.ID, user.Email, user.Roles)
	return token, expiresAt, err
}

// MintRefresh issues a refresh credential for user and records it in the Session Store.
func (s *Service) MintRefresh(ctx context.Context, user UserLike, device string) (token string, expiresAt time.Time, err error) {
	token, jti, expiresAt, err := s.tokens.IssueRefresh(user.ID, device)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	if err := s.sessions.Create(ctx, jti, user.ID, device, nil, now, expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyAccess verifies signature, kind, and expiry only. Never consults the Session Store.
func (s *Service) VerifyAccess(token string) (*Principal, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		logAuthFailure("verify_access", err)
		return nil, ErrAuthentication
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email, Roles: claims.Roles}, nil
}

// VerifyRefresh verifies signature, kind, and expiry, then confirms the jti is present and
// unrevoked in the Session Store.
func (s *Service) VerifyRefresh(ctx context.Context, token string) (*RefreshRecord, error) {
	claims, err := s.tokens.ParseRefresh(token)
	if err != nil {
		logAuthFailure("verify_refresh", err)
		return nil, ErrAuthentication
	}
	sess, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sessionservice.ErrSessionNotFound) {
			logAuthFailure("verify_refresh", err)
			return nil, ErrAuthentication
		}
		return nil, err
	}
	return &RefreshRecord{
		JTI: sess.JTI, UserID: sess.UserID, Device: sess.Device,
		IssuedAt: sess.IssuedAt, ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Rotate atomically exchanges a refresh credential for a new access/refresh pair: it verifies
// the old refresh, mints and persists the new one, then deletes the old jti. Concurrent Rotate
// calls for the same refresh credential race on that delete; the call that does not observe the
// row (because the other already removed it) loses, revokes the new session it had just minted,
// and returns ErrAuthentication — so exactly one caller succeeds, per spec.md §4.1/§4.2.
func (s *Service) Rotate(ctx context.Context, refreshToken string, user UserLike) (newAccess, newRefresh string, expiresAt time.Time, err error) {
	old, err := s.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return "", "", time.Time{}, err
	}

	newRefresh, _, err = s.MintRefresh(ctx, user, old.Device)
	if err != nil {
		return "", "", time.Time{}, err
	}

	deleted, err := s.sessions.RevokeIfPresent(ctx, old.JTI)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if !deleted {
		// Lost the race: another Rotate call already deleted old.JTI. Undo the new session so we
		// don't leave two live refresh credentials for one logical rotation.
		newClaims, parseErr := s.tokens.ParseRefresh(newRefresh)
		if parseErr == nil {
			_ = s.sessions.Revoke(ctx, newClaims.ID)
		}
		logAuthFailure("rotate", errors.New("lost race on refresh jti"))
		return "", "", time.Time{}, ErrAuthentication
	}

	newAccess, accessExp, err := s.MintAccess(user)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return newAccess, newRefresh, accessExp, nil
}

// Revoke removes a single session record by jti. Idempotent: revoking an absent jti is a no-op.
func (s *Service) Revoke(ctx context.Context, jti string) error {
	return s.sessions.Revoke(ctx, jti)
}

// RevokeAll removes every session record owned by userID and returns the count removed.
func (s *Service) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func logAuthFailure(op string, cause error) {
	log.Printf("credential: %s failed: %v", op, cause)
}
