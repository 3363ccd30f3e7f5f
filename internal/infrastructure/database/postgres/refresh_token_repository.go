package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainUser "library-auth/internal/domain/user"
	"library-auth/internal/infrastructure/database/postgres/models"
	appErrors "library-auth/pkg/errors"
)

// RefreshTokenRepository implements domainUser.RefreshTokenRepository on
// postgres.
type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) domainUser.RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Save replaces the user's refresh token in a single transaction, so there
// is no window where an older token is still considered valid after a newer
// one has been issued.
func (r *RefreshTokenRepository) Save(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).
			Delete(&models.RefreshTokenModel{}).Error; err != nil {
			return err
		}

		return tx.Create(&models.RefreshTokenModel{
			ID:        uuid.New(),
			UserID:    userID,
			Token:     token,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) FindValid(ctx context.Context, token string) (*domainUser.RefreshToken, error) {
	var dbModel models.RefreshTokenModel
	err := r.db.DB.WithContext(ctx).
		Where("token = ? AND expires_at > NOW()", token).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Missing and expired collapse into one outcome.
		return nil, appErrors.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return toRefreshTokenEntity(&dbModel), nil
}

// Consume deletes the row for token and reports whether it existed. A
// single DELETE keeps rotation linearizable per token: of two concurrent
// calls, exactly one observes RowsAffected == 1.
func (r *RefreshTokenRepository) Consume(ctx context.Context, token string) (bool, error) {
	result := r.db.DB.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.RefreshTokenModel{})

	if result.Error != nil {
		return false, fmt.Errorf("failed to consume refresh token: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshTokenModel{})

	if result.Error != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", result.Error)
	}

	return nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	result := r.db.DB.WithContext(ctx).
		Where("expires_at < NOW()").
		Delete(&models.RefreshTokenModel{})

	return result.Error
}

func toRefreshTokenEntity(m *models.RefreshTokenModel) *domainUser.RefreshToken {
	return &domainUser.RefreshToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}
