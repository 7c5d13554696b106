package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"toolplane/internal/security"
	"toolplane/internal/user/domain"
)

type memRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
	return nil
}

func (r *memRepo) UpdateRoles(ctx context.Context, id string, roles []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Roles = roles
	return nil
}

func (r *memRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	return nil
}

func (r *memRepo) Search(ctx context.Context, query string, limit, offset int) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.byID {
		out = append(out, u)
	}
	return out, nil
}

func newTestDirectory() *Directory {
	return NewDirectory(newMemRepo(), security.NewHasher(4))
}

func TestDirectory_RegisterAndAuthenticate(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	user, err := d.Register(ctx, "Alice@Example.com", "Correct-Horse9")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email should be normalized to lowercase, got %s", user.Email)
	}

	got, err := d.Authenticate(ctx, "alice@example.com", "Correct-Horse9")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("authenticated user mismatch")
	}
}

func TestDirectory_RegisterDuplicateEmail(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()
	if _, err := d.Register(ctx, "bob@example.com", "Correct-Horse9"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.Register(ctx, "bob@example.com", "Another-Pass9"); err != ErrEmailAlreadyRegistered {
		t.Fatalf("expected ErrEmailAlreadyRegistered, got %v", err)
	}
}

func TestDirectory_RegisterEnforcesPasswordPolicy(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()

	cases := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"too short", "Sh0rt", ErrWeakPassword},
		{"no uppercase", "lowercase9", ErrWeakPassword},
		{"no lowercase", "UPPERCASE9", ErrWeakPassword},
		{"no digit", "NoDigitsHere", ErrWeakPassword},
		{"spec example", "Pw12345!", nil},
	}
	for i, tc := range cases {
		email := fmt.Sprintf("policy%d@example.com", i)
		_, err := d.Register(ctx, email, tc.password)
		if err != tc.wantErr {
			t.Errorf("%s: Register(%q) error = %v, want %v", tc.name, tc.password, err, tc.wantErr)
		}
	}
}

func TestDirectory_AuthenticateWrongPassword(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()
	if _, err := d.Register(ctx, "carol@example.com", "Correct-Horse9"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := d.Authenticate(ctx, "carol@example.com", "wrong-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDirectory_AuthenticateUnknownEmailIsInvalidCredentials(t *testing.T) {
	d := newTestDirectory()
	if _, err := d.Authenticate(context.Background(), "nobody@example.com", "whatever-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestDirectory_AuthenticateInactiveUser(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()
	user, err := d.Register(ctx, "dave@example.com", "Correct-Horse9")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := d.Authenticate(ctx, "dave@example.com", "Correct-Horse9"); err != ErrUserInactive {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestDirectory_SetRolesNormalizes(t *testing.T) {
	d := newTestDirectory()
	ctx := context.Background()
	user, err := d.Register(ctx, "erin@example.com", "Correct-Horse9")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.SetRoles(ctx, user.ID, []string{"Admin", "admin", " viewer "}); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}
	got, err := d.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(got.Roles) != 2 {
		t.Fatalf("expected normalized/deduped roles, got %v", got.Roles)
	}
}
