package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, wrong kind, or fails signature
// verification. The cause is intentionally not distinguished in the returned error; callers log
// internally before returning it (see SPEC_FULL.md §4.1 failure semantics).
var ErrInvalidToken = errors.New("invalid token")

// CredentialKind distinguishes access from refresh credentials in the signed envelope so one
// cannot be replayed as the other.
type CredentialKind string

const (
	KindAccess  CredentialKind = "access"
	KindRefresh CredentialKind = "refresh"
)

// AccessClaims holds JWT claims for a short-lived, stateless access credential.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string         `json:"email"`
	Roles []string       `json:"roles"`
	Kind  CredentialKind `json:"kind"`
}

// RefreshClaims holds JWT claims for a long-lived refresh credential. Device is optional and
// carried through unchanged for display/audit purposes only.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Kind   CredentialKind `json:"kind"`
	Device string         `json:"device,omitempty"`
}

// TokenProvider signs and verifies access and refresh credentials with a single symmetric MAC
// key (HS256), per SPEC_FULL.md's resolution of the source's asymmetric-signing scheme down to
// the spec's "signing_key" configuration option. Clock skew tolerance is zero; callers must sync
// clocks externally (spec.md §4.1).
type TokenProvider struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with key. key must be at least 32 bytes;
// config.Load already enforces this at startup.
func NewTokenProvider(key []byte, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssueAccess mints a signed access credential for userID/email/roles. Stateless: no Session
// Store interaction.
func (p *TokenProvider) IssueAccess(userID, email string, roles []string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Roles: roles,
		Kind:  KindAccess,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// IssueRefresh mints a signed refresh credential for userID. The caller is responsible for
// inserting the returned jti into the Session Store; IssueRefresh has no side effects of its own.
func (p *TokenProvider) IssueRefresh(userID, device string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:   KindRefresh,
		Device: device,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(p.key)
}

// ParseAccess verifies signature, kind, and expiry. It never consults the Session Store; access
// credentials are stateless per spec.md §4.1.
func (p *TokenProvider) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != KindAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies signature, kind, and expiry only; the caller (Credential Service) is
// responsible for the additional Session Store jti check spec.md §4.1 requires.
func (p *TokenProvider) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != KindRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return p.key, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
