package model

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub-admin"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSubAdmin
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	Subject string
	Role    Role
}
