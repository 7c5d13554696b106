// Command worker runs the Session Store's expired-session reaper as a standalone background
// process, so the sweep runs once per deployment rather than once per Tool Server replica.
// Grounded on the teacher's cmd/worker/main.go shape: config.Load, build dependencies, a
// goroutine that cancels a context on SIGINT/SIGTERM, block until that context is done.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"toolplane/internal/config"
	"toolplane/internal/db"
	sessionrepo "toolplane/internal/session/repository"
	sessionservice "toolplane/internal/session/service"
)

const reapInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	sessionStore := sessionservice.NewStore(sessionrepo.NewPostgresRepository(pool.Pool()))

	log.Printf("worker: reaping expired sessions every %s", reapInterval)
	sessionStore.RunReaper(ctx, reapInterval)
	log.Println("worker: stopped")
}
