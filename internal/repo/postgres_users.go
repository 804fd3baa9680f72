package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

func (s *PostgresStore) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash, string(u.Role)).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return model.User{}, fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return model.User{}, notFoundOr(err, "user", email)
	}
	u.Role = model.Role(role)
	return u, nil
}
