package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultRole = "user"

// User is the anchor identity record. A user can log in only after both
// IsVerified and IsActive are true; both start false at registration.
type User struct {
	Uid          uuid.UUID `json:"uid"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	IsActive     bool      `json:"is_active"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
