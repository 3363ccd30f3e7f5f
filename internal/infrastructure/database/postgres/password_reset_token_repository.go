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

// PasswordResetTokenRepository implements
// domainUser.PasswordResetTokenRepository on postgres.
type PasswordResetTokenRepository struct {
	db *DB
}

func NewPasswordResetTokenRepository(db *DB) domainUser.PasswordResetTokenRepository {
	return &PasswordResetTokenRepository{db: db}
}

// Replace supersedes any earlier token for the email in one transaction,
// keeping at most one live reset token per address.
func (r *PasswordResetTokenRepository) Replace(ctx context.Context, email, token string, expiresAt time.Time) error {
	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).
			Delete(&models.PasswordResetTokenModel{}).Error; err != nil {
			return err
		}

		return tx.Create(&models.PasswordResetTokenModel{
			ID:        uuid.New(),
			Email:     email,
			Token:     token,
			ExpiresAt: expiresAt,
			CreatedAt: time.Now(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace reset token: %w", err)
	}

	return nil
}

// FindValid looks the token up without an expiry filter so an expired row
// can be deleted eagerly; missing and expired both come back as
// ErrResetTokenInvalid.
func (r *PasswordResetTokenRepository) FindValid(ctx context.Context, token string) (*domainUser.PasswordResetToken, error) {
	var dbModel models.PasswordResetTokenModel
	err := r.db.DB.WithContext(ctx).
		Where("token = ?", token).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrResetTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}

	if time.Now().After(dbModel.ExpiresAt) {
		if err := r.Consume(ctx, token); err != nil {
			return nil, err
		}
		return nil, appErrors.ErrResetTokenInvalid
	}

	return &domainUser.PasswordResetToken{
		ID:        dbModel.ID,
		Email:     dbModel.Email,
		Token:     dbModel.Token,
		ExpiresAt: dbModel.ExpiresAt,
		CreatedAt: dbModel.CreatedAt,
	}, nil
}

func (r *PasswordResetTokenRepository) Consume(ctx context.Context, token string) error {
	result := r.db.DB.WithContext(ctx).
		Where("token = ?", token).
		Delete(&models.PasswordResetTokenModel{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete reset token: %w", result.Error)
	}

	return nil
}

func (r *PasswordResetTokenRepository) DeleteExpired(ctx context.Context) error {
	result := r.db.DB.WithContext(ctx).
		Where("expires_at < NOW()").
		Delete(&models.PasswordResetTokenModel{})

	return result.Error
}
