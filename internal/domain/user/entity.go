package user

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleReader    = "READER"
	RoleLibrarian = "LIBRARIAN"
	RoleAdmin     = "ADMIN"
)

// User is the credential-bearing account record. This subsystem creates
// users and later touches only PasswordHash and IsActive; profile fields
// belong to other services.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken is a persisted long-lived credential. A row is deleted the
// moment it is consumed by a refresh or a logout; it can never be used twice.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PasswordResetToken is keyed by email rather than user ID so a token row
// stays harmless if the account it was issued for disappears.
type PasswordResetToken struct {
	ID        uuid.UUID
	Email     string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
