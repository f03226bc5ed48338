package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/arklim/tenant-session-service/internal/db/migrate"
	"github.com/arklim/tenant-session-service/internal/infra/config"
	"github.com/arklim/tenant-session-service/internal/infra/database"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := migrate.Run(database.DSN(cfg.Postgres), *direction); err != nil {
		log.Fatalf("migration %s failed: %v", *direction, err)
	}
	log.Printf("migration %s completed", *direction)
}
