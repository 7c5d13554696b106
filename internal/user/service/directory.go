// Package service implements the User Directory: registration, authentication, and
// administrative lookups over the user repository.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"toolplane/internal/security"
	"toolplane/internal/user/domain"
)

var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserInactive           = errors.New("user is inactive")
	ErrUserNotFound           = errors.New("user not found")
	ErrWeakPassword           = errors.New("password must be at least 8 characters and include an uppercase letter, a lowercase letter, and a digit")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

const minPasswordLength = 8

// validatePassword enforces the documented policy: minimum 8 characters, at least one
// uppercase letter, one lowercase letter, and one digit (spec.md §4.3).
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// dummyHash is compared against on every failed lookup so that Authenticate takes
// approximately the same time whether or not the email exists. The source system's
// equivalent path returned immediately on a missing user, which leaks existence through
// response timing; this directory always pays the bcrypt cost.
const dummyHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8Vsqc3BbOMfWUZQ4Q1FXRZt3f0GVsO"

// Repository is the subset of user persistence the directory needs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateRoles(ctx context.Context, id string, roles []string) error
	SetActive(ctx context.Context, id string, active bool) error
	Search(ctx context.Context, query string, limit, offset int) ([]*domain.User, error)
}

// Directory implements user registration, authentication, and administrative operations.
type Directory struct {
	repo   Repository
	hasher *security.Hasher
}

// NewDirectory returns a Directory backed by repo and hasher.
func NewDirectory(repo Repository, hasher *security.Hasher) *Directory {
	return &Directory{repo: repo, hasher: hasher}
}

// Register creates a new active user with the given email and password and no roles.
func (d *Directory) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !emailPattern.MatchString(email) {
		return nil, errors.New("invalid email format")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hash, err := d.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := d.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies email/password and returns the user on success. It always performs a
// bcrypt compare, even when no user matches email, so failure timing does not disclose whether
// the account exists.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := d.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hash := dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	compareErr := d.hasher.Compare(hash, []byte(password))

	if user == nil || compareErr != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	return user, nil
}

// FindByID returns the user for id, or ErrUserNotFound if none exists.
func (d *Directory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// FindByEmail returns the user for email, or ErrUserNotFound if none exists.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := d.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Search returns users whose email matches query, paginated.
func (d *Directory) Search(ctx context.Context, query string, limit, offset int) ([]*domain.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.repo.Search(ctx, query, limit, offset)
}

// SetRoles replaces the role set for the user with the given id. Used by the Admin Surface.
func (d *Directory) SetRoles(ctx context.Context, id string, roles []string) error {
	return d.repo.UpdateRoles(ctx, id, normalizeRoles(roles))
}

// SetActive enables or disables the user with the given id. Used by the Admin Surface.
func (d *Directory) SetActive(ctx context.Context, id string, active bool) error {
	return d.repo.SetActive(ctx, id, active)
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
