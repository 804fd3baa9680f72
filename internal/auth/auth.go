// Package auth issues and verifies bearer tokens for the admin API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/LeventeLantos/drama-notifier/internal/model"
	"github.com/LeventeLantos/drama-notifier/internal/repo"
)

const (
	DefaultTokenTTL   = 24 * time.Hour
	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email")
)

type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	users  repo.UserRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(users repo.UserRepository, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Authenticate checks email and password and returns a signed token for the
// user. Unknown emails and wrong passwords are indistinguishable.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (string, model.Principal, error) {
	u, err := a.users.FindUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrNotFound) {
		return "", model.Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", model.Principal{}, fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", model.Principal{}, ErrInvalidCredentials
	}

	p := model.Principal{Subject: u.ID, Role: u.Role}
	token, err := a.IssueToken(p)
	if err != nil {
		return "", model.Principal{}, err
	}
	return token, p, nil
}

func (a *Authenticator) IssueToken(p model.Principal) (string, error) {
	now := a.now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) ParseToken(raw string) (model.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Principal{}, ErrInvalidToken
	}
	return model.Principal{Subject: claims.Subject, Role: claims.Role}, nil
}

// Authorize reports whether p may act with the required role. Admins satisfy
// every requirement.
func Authorize(p model.Principal, required model.Role) bool {
	switch p.Role {
	case model.RoleAdmin:
		return true
	case model.RoleSubAdmin:
		return required == model.RoleSubAdmin
	default:
		return false
	}
}

func (a *Authenticator) CreateSubAdmin(ctx context.Context, email, password string) (model.User, error) {
	return a.createUser(ctx, email, password, model.RoleSubAdmin)
}

// SeedAdmin creates an admin account. It is used once to bootstrap a fresh
// database.
func (a *Authenticator) SeedAdmin(ctx context.Context, email, password string) (model.User, error) {
	return a.createUser(ctx, email, password, model.RoleAdmin)
}

func (a *Authenticator) createUser(ctx context.Context, email, password string, role model.Role) (model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, err
	}
	return a.users.CreateUser(ctx, model.User{Email: email, PasswordHash: hash, Role: role})
}

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
