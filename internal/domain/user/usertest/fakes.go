// Package usertest provides in-memory implementations of the user domain
// repositories for tests. The stores are safe for concurrent use and honor
// the same validity/atomicity contracts as the postgres implementations.
package usertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domainUser "library-auth/internal/domain/user"
	appErrors "library-auth/pkg/errors"
)

// MemoryUserRepository is an in-memory domainUser.Repository.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domainUser.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uuid.UUID]domainUser.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *domainUser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return appErrors.ErrUserAlreadyExists
		}
	}

	u.ID = uuid.New()
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domainUser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, appErrors.ErrUserNotFound
}

func (r *MemoryUserRepository) GetByID(_ context.Context, userID uuid.UUID) (*domainUser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, appErrors.ErrUserNotFound
	}
	copied := u
	return &copied, nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return appErrors.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	r.users[userID] = u
	return nil
}

// SetActive flips the account flag directly; tests use it to simulate
// deactivation, which is outside this subsystem's API.
func (r *MemoryUserRepository) SetActive(userID uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[userID]; ok {
		u.IsActive = active
		r.users[userID] = u
	}
}

// MemoryRefreshTokenRepository is an in-memory
// domainUser.RefreshTokenRepository. Consume holds the lock across
// lookup-and-delete, matching the single-statement atomicity of the SQL
// implementation.
type MemoryRefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domainUser.RefreshToken
}

func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{tokens: make(map[string]domainUser.RefreshToken)}
}

func (r *MemoryRefreshTokenRepository) Save(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, rec := range r.tokens {
		if rec.UserID == userID {
			delete(r.tokens, t)
		}
	}

	r.tokens[token] = domainUser.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) FindValid(_ context.Context, token string) (*domainUser.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tokens[token]
	if !ok || time.Now().After(rec.ExpiresAt) {
		return nil, appErrors.ErrInvalidToken
	}
	copied := rec
	return &copied, nil
}

func (r *MemoryRefreshTokenRepository) Consume(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tokens[token]
	if ok {
		delete(r.tokens, token)
	}
	return ok, nil
}

func (r *MemoryRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, rec := range r.tokens {
		if rec.UserID == userID {
			delete(r.tokens, t)
		}
	}
	return nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for t, rec := range r.tokens {
		if now.After(rec.ExpiresAt) {
			delete(r.tokens, t)
		}
	}
	return nil
}

// Count reports how many token rows are stored.
func (r *MemoryRefreshTokenRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// MemoryResetTokenRepository is an in-memory
// domainUser.PasswordResetTokenRepository.
type MemoryResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domainUser.PasswordResetToken
}

func NewMemoryResetTokenRepository() *MemoryResetTokenRepository {
	return &MemoryResetTokenRepository{tokens: make(map[string]domainUser.PasswordResetToken)}
}

func (r *MemoryResetTokenRepository) Replace(_ context.Context, email, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, rec := range r.tokens {
		if rec.Email == email {
			delete(r.tokens, t)
		}
	}

	r.tokens[token] = domainUser.PasswordResetToken{
		ID:        uuid.New(),
		Email:     email,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return nil
}

func (r *MemoryResetTokenRepository) FindValid(_ context.Context, token string) (*domainUser.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tokens[token]
	if !ok {
		return nil, appErrors.ErrResetTokenInvalid
	}
	if time.Now().After(rec.ExpiresAt) {
		delete(r.tokens, token)
		return nil, appErrors.ErrResetTokenInvalid
	}
	copied := rec
	return &copied, nil
}

func (r *MemoryResetTokenRepository) Consume(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, token)
	return nil
}

func (r *MemoryResetTokenRepository) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for t, rec := range r.tokens {
		if now.After(rec.ExpiresAt) {
			delete(r.tokens, t)
		}
	}
	return nil
}

// Seed stores a token row directly, bypassing Replace, so tests can plant
// expired rows.
func (r *MemoryResetTokenRepository) Seed(rec domainUser.PasswordResetToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[rec.Token] = rec
}

// Has reports whether a row for token is still stored.
func (r *MemoryResetTokenRepository) Has(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[token]
	return ok
}
