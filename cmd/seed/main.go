// Command seed inserts development fixtures for local testing: a dev admin and a dev regular
// user, plus a starter permission grant. Idempotent: skips the inserts if the dev admin
// (dev@example.com) already exists. Adapted from the teacher's cmd/seed/main.go, which seeded
// against a sqlc-generated query layer this module does not have; here the same
// idempotence-check shape (look up by email, skip on a hit) runs against the User Directory and
// Authorization Engine's grant repository directly.
package main

import (
	"context"
	"log"
	"time"

	"toolplane/internal/authz/domain"
	authzrepo "toolplane/internal/authz/repository"
	"toolplane/internal/config"
	"toolplane/internal/db"
	"toolplane/internal/security"
	userrepo "toolplane/internal/user/repository"
	userservice "toolplane/internal/user/service"
)

const (
	devAdminEmail    = "dev@example.com"
	devUserEmail     = "member@example.com"
	devPassword      = "DevPassword123!"
	devGrantID       = "role:user:web_search:*"
	devGrantResource = "*"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	directory := userservice.NewDirectory(userrepo.NewPostgresRepository(pool.Pool()), security.NewHasher(cfg.BcryptCost))
	grants := authzrepo.NewPostgresRepository(pool.Pool())

	if _, err := directory.FindByEmail(ctx, devAdminEmail); err == nil {
		log.Println("seed: dev fixtures already present, skipping")
		return
	} else if err != userservice.ErrUserNotFound {
		log.Fatalf("seed: checking for existing dev admin: %v", err)
	}

	admin, err := directory.Register(ctx, devAdminEmail, devPassword)
	if err != nil {
		log.Fatalf("seed: registering dev admin: %v", err)
	}
	if err := directory.SetRoles(ctx, admin.ID, []string{domain.RoleAdmin}); err != nil {
		log.Fatalf("seed: granting admin role: %v", err)
	}
	log.Printf("seed: created dev admin %s (%s)", admin.Email, admin.ID)

	member, err := directory.Register(ctx, devUserEmail, devPassword)
	if err != nil {
		log.Fatalf("seed: registering dev user: %v", err)
	}
	if err := directory.SetRoles(ctx, member.ID, []string{domain.RoleUser}); err != nil {
		log.Fatalf("seed: granting user role: %v", err)
	}
	log.Printf("seed: created dev user %s (%s)", member.Email, member.ID)

	starterGrant := &domain.Grant{
		ID:              devGrantID,
		SubjectKind:     domain.SubjectRole,
		Subject:         domain.RoleUser,
		ResourceType:    domain.ResourceWebSearch,
		ResourcePattern: devGrantResource,
		Actions:         []domain.Action{domain.ActionRead},
		GrantedAt:       time.Now().UTC(),
	}
	if err := grants.Upsert(ctx, starterGrant); err != nil {
		log.Fatalf("seed: creating starter grant: %v", err)
	}
	log.Println("seed: granted role:user read access to web_search:*")
}
