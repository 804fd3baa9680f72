package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/LeventeLantos/drama-notifier/internal/auth"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
)

// seedadmin creates the first admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Running it again for an existing email is a no-op.
func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("POSTGRES_URL")
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if dbURL == "" || email == "" || password == "" {
		log.Fatal("POSTGRES_URL, ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repo.MigrateUp(dbURL); err != nil {
		log.Fatal(err)
	}
	store, err := repo.NewPostgresStore(ctx, dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// The secret is irrelevant here; no token is issued.
	a := auth.NewAuthenticator(store, "unused", 0)
	u, err := a.SeedAdmin(ctx, email, password)
	switch {
	case errors.Is(err, repo.ErrConflict):
		slog.Info("admin already exists", "email", email)
	case err != nil:
		log.Fatal(err)
	default:
		slog.Info("admin created", "id", u.ID, "email", u.Email)
	}
}
