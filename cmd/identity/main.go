package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/keylet/keylet/internal/identity/app"
)

func main() {
	// Missing .env is fine; the environment itself still applies.
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
