// Package password implements the forgot/reset/validate flow for password
// reset tokens.
package password

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainUser "library-auth/internal/domain/user"
	"library-auth/internal/hasher"
	"library-auth/internal/logger"
	"library-auth/internal/notifier"
	appErrors "library-auth/pkg/errors"
	"library-auth/pkg/utils"
)

// ResetTokenTTL is how long a reset link stays usable.
const ResetTokenTTL = time.Hour

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type Service struct {
	users         domainUser.Repository
	resetTokens   domainUser.PasswordResetTokenRepository
	refreshTokens domainUser.RefreshTokenRepository
	hasher        hasher.Hasher
	notifier      notifier.Notifier
}

func NewService(
	users domainUser.Repository,
	resetTokens domainUser.PasswordResetTokenRepository,
	refreshTokens domainUser.RefreshTokenRepository,
	h hasher.Hasher,
	n notifier.Notifier,
) *Service {
	return &Service{
		users:         users,
		resetTokens:   resetTokens,
		refreshTokens: refreshTokens,
		hasher:        h,
		notifier:      n,
	}
}

// ForgotPassword issues a reset token and hands it to the notifier. The
// caller receives the same outcome whether or not the email is registered.
func (s *Service) ForgotPassword(ctx context.Context, req *ForgotPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			logger.Info("Password reset requested for non-existent email",
				zap.String("email", req.Email),
				zap.String("event", "password_reset_unknown_email"),
			)
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	resetToken, err := utils.GenerateResetToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(ResetTokenTTL)
	if err := s.resetTokens.Replace(ctx, u.Email, resetToken, expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, u.Email, resetToken); err != nil {
		return fmt.Errorf("failed to deliver reset token: %w", err)
	}

	logger.Info("Password reset token issued",
		zap.String("user_id", u.ID.String()),
		zap.Time("expires_at", expiresAt),
		zap.String("event", "password_reset_token_issued"),
	)

	return nil
}

// ResetPassword consumes a reset token, rehashes the password and revokes
// every refresh token the user holds.
func (s *Service) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	resetToken, err := s.resetTokens.FindValid(ctx, req.Token)
	if err != nil {
		logger.Warn("Password reset attempt with invalid token",
			zap.String("event", "password_reset_failed_invalid_token"),
		)
		return appErrors.ErrResetTokenInvalid
	}

	// The token is keyed by email, not user ID. The account may have been
	// removed since the token was issued.
	u, err := s.users.GetByEmail(ctx, resetToken.Email)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return appErrors.ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, u.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.resetTokens.Consume(ctx, req.Token); err != nil {
		logger.Error("Failed to delete consumed reset token",
			zap.String("user_id", u.ID.String()),
			zap.Error(err),
		)
	}

	// Force re-authentication everywhere.
	if err := s.refreshTokens.RevokeAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	logger.Info("Password reset successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "password_reset_success"),
	)

	return nil
}

// ValidateResetToken is a read-only probe used before showing the reset
// form. Expired rows are deleted during the lookup, exactly as in
// ResetPassword.
func (s *Service) ValidateResetToken(ctx context.Context, tokenValue string) error {
	if _, err := s.resetTokens.FindValid(ctx, tokenValue); err != nil {
		return appErrors.ErrResetTokenInvalid
	}
	return nil
}

// StartTokenCleanupJob periodically removes expired reset token rows.
func (s *Service) StartTokenCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Reset token cleanup job started",
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Reset token cleanup job stopped")
			return
		case <-ticker.C:
			if err := s.resetTokens.DeleteExpired(ctx); err != nil {
				logger.Error("Failed to delete expired reset tokens", zap.Error(err))
			}
		}
	}
}
