// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev token already exists.
package main

import (
	"context"
	"log"
	"time"

	"media-stream-auth/backend/internal/config"
	"media-stream-auth/backend/internal/db"
	"media-stream-auth/backend/internal/token/domain"
	tokenrepo "media-stream-auth/backend/internal/token/repository"
)

const (
	devTokenValue = "dev-token-001"
	devUserID     = "dev-user-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := tokenrepo.NewPostgresRepository(conn)
	existing, err := repo.GetByValue(ctx, devTokenValue)
	if err != nil {
		log.Fatalf("check dev token: %v", err)
	}
	if existing != nil {
		log.Printf("dev token %s already exists, skipping", devTokenValue)
		return
	}

	maxSessions := 2
	now := time.Now().UTC()
	tok := &domain.Token{
		Value:       devTokenValue,
		UserID:      devUserID,
		Status:      domain.TokenStatusActive,
		MaxSessions: &maxSessions,
		Metadata:    map[string]string{"plan": "dev"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tok.Validate(); err != nil {
		log.Fatalf("dev token invalid: %v", err)
	}
	if err := repo.Create(ctx, tok); err != nil {
		log.Fatalf("create dev token: %v", err)
	}
	log.Printf("seeded dev token %s (user %s, max_sessions %d)", devTokenValue, devUserID, maxSessions)
}
