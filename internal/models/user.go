package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin     = "admin"
	RoleBasicUser = "basic_user"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	HashedPassword string

	// Opaque marker embedded into every access token.
	// Changing it invalidates all access tokens issued before the change.
	Serial string

	Roles []string
}

func (u User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}
