package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"library-auth/internal/logger"
)

// StartTokenCleanupJob periodically removes expired refresh token rows.
// Expiry is always double-checked on lookup, so the sweep only reclaims
// storage.
func (s *Service) StartTokenCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Refresh token cleanup job started",
		zap.Duration("interval", interval),
	)

	s.cleanupExpiredTokens(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Refresh token cleanup job stopped")
			return
		case <-ticker.C:
			s.cleanupExpiredTokens(ctx)
		}
	}
}

func (s *Service) cleanupExpiredTokens(ctx context.Context) {
	if err := s.refreshTokens.DeleteExpired(ctx); err != nil {
		logger.Error("Failed to delete expired refresh tokens", zap.Error(err))
		return
	}

	logger.Debug("Expired refresh tokens cleaned up")
}
