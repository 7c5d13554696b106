// Command migrate applies or reverts the schema embedded in internal/db/migrations, ported
// nearly verbatim from the teacher's cmd/migrate/main.go.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"toolplane/internal/config"
	"toolplane/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.Printf("migrations applied (%s)", *direction)
}
