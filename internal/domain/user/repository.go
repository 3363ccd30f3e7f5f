package user

//go:generate mockgen -source=repository.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for user credential storage.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// RefreshTokenRepository defines the interface for refresh token storage.
type RefreshTokenRepository interface {
	// Save deletes every existing token for userID and inserts the new one
	// in a single transaction, so only one refresh token is live per user.
	Save(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	// FindValid returns a token row only while it has not expired. Callers
	// cannot distinguish missing from expired; both are ErrInvalidToken.
	FindValid(ctx context.Context, token string) (*RefreshToken, error)
	// Consume deletes the row and reports whether it existed. The delete is
	// atomic at the storage layer: concurrent calls with the same token see
	// at most one true.
	Consume(ctx context.Context, token string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) error
}

// PasswordResetTokenRepository defines the interface for one-time reset
// token storage.
type PasswordResetTokenRepository interface {
	// Replace removes any token previously issued for email and stores the
	// new one, keeping at most one live reset token per email.
	Replace(ctx context.Context, email, token string, expiresAt time.Time) error
	// FindValid returns the row for token if it has not expired. An expired
	// row is deleted during the lookup and reported as ErrResetTokenInvalid,
	// same as a missing row.
	FindValid(ctx context.Context, token string) (*PasswordResetToken, error)
	// Consume deletes the row; consuming an absent token is not an error.
	Consume(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}
