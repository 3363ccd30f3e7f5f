package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainUser "library-auth/internal/domain/user"
	"library-auth/internal/hasher"
	"library-auth/internal/logger"
	"library-auth/internal/token"
	appErrors "library-auth/pkg/errors"
	"library-auth/pkg/utils"
)

// Service orchestrates registration, login, refresh rotation and logout.
type Service struct {
	users         domainUser.Repository
	refreshTokens domainUser.RefreshTokenRepository
	hasher        hasher.Hasher
	accessIssuer  *token.Issuer
	refreshIssuer *token.Issuer
}

func NewService(
	users domainUser.Repository,
	refreshTokens domainUser.RefreshTokenRepository,
	h hasher.Hasher,
	accessIssuer, refreshIssuer *token.Issuer,
) *Service {
	return &Service{
		users:         users,
		refreshTokens: refreshTokens,
		hasher:        h,
		accessIssuer:  accessIssuer,
		refreshIssuer: refreshIssuer,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, appErrors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		logger.Warn("Registration attempt with existing email",
			zap.String("email", req.Email),
			zap.String("event", "registration_failed_duplicate_email"),
		)
		return nil, appErrors.ErrUserAlreadyExists
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &domainUser.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         domainUser.RoleReader,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, appErrors.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Info("User registered successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("email", u.Email),
		zap.String("role", u.Role),
		zap.String("event", "user_registered"),
	)

	return &AuthResponse{
		User:         ToUserResponse(u),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			logger.Warn("Login attempt with non-existent email",
				zap.String("email", req.Email),
				zap.String("event", "login_failed_user_not_found"),
			)
			// Same outcome as a wrong password: no enumeration signal.
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Verify(ctx, req.Password, u.PasswordHash) {
		logger.Warn("Login attempt with invalid password",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "login_failed_invalid_password"),
		)
		return nil, appErrors.ErrInvalidCredentials
	}

	if !u.IsActive {
		logger.Warn("Login attempt for deactivated account",
			zap.String("user_id", u.ID.String()),
			zap.String("event", "login_failed_inactive_user"),
		)
		return nil, appErrors.ErrUserInactive
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Info("User logged in successfully",
		zap.String("user_id", u.ID.String()),
		zap.String("role", u.Role),
		zap.String("event", "login_success"),
	)

	return &AuthResponse{
		User:         ToUserResponse(u),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed exactly
// once and a fresh pair is issued for the same user. A token that was
// already consumed, revoked, expired or never issued fails identically.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPairResponse, error) {
	claims, err := s.refreshIssuer.Verify(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			logger.Warn("Token refresh attempt with expired token",
				zap.String("event", "token_refresh_failed_expired"),
			)
		} else {
			logger.Warn("Token refresh attempt with invalid token",
				zap.String("event", "token_refresh_failed_invalid"),
			)
		}
		return nil, appErrors.ErrInvalidToken
	}

	existed, err := s.refreshTokens.Consume(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if !existed {
		logger.Warn("Token refresh attempt with consumed or revoked token",
			zap.String("user_id", claims.UserID.String()),
			zap.String("event", "token_refresh_failed_not_found"),
		)
		return nil, appErrors.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			return nil, appErrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return nil, err
	}

	logger.Debug("Tokens refreshed",
		zap.String("user_id", u.ID.String()),
		zap.String("event", "token_refresh_success"),
	)

	return pair, nil
}

// Logout consumes the matching refresh token if present. Logging out twice,
// or with a token that was never issued, still succeeds.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	existed, err := s.refreshTokens.Consume(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	logger.Info("User logged out",
		zap.Bool("token_existed", existed),
		zap.String("event", "logout"),
	)

	return nil
}

// LogoutAll revokes every refresh token for the user, forcing
// re-authentication on all devices.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.refreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke tokens for user: %w", err)
	}

	logger.Info("All refresh tokens revoked for user",
		zap.String("user_id", userID.String()),
		zap.String("event", "all_tokens_revoked"),
	)

	return nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return ToUserResponse(u), nil
}

// issueTokens signs an access+refresh pair and persists the refresh token,
// superseding any prior refresh token the user held.
func (s *Service) issueTokens(ctx context.Context, u *domainUser.User) (*TokenPairResponse, error) {
	accessToken, err := s.accessIssuer.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := s.refreshIssuer.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	expiresAt := time.Now().Add(s.refreshIssuer.TTL())
	if err := s.refreshTokens.Save(ctx, u.ID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
