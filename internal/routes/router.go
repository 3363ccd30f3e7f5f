package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-auth/internal/config"
	"library-auth/internal/delivery/http/handler"
	"library-auth/internal/hasher"
	"library-auth/internal/infrastructure/database/postgres"
	"library-auth/internal/logger"
	"library-auth/internal/middleware"
	"library-auth/internal/notifier"
	"library-auth/internal/token"
	"library-auth/internal/usecase/auth"
	"library-auth/internal/usecase/password"
)

// Services bundles the constructed use cases so main can run their
// background jobs.
type Services struct {
	Auth     *auth.Service
	Password *password.Service
}

func SetupRoutes(cfg *config.Config, db *postgres.DB) (*gin.Engine, *Services) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Service is running",
		})
	})

	userRepository := postgres.NewUserRepository(db)
	refreshTokenRepository := postgres.NewRefreshTokenRepository(db)
	resetTokenRepository := postgres.NewPasswordResetTokenRepository(db)

	passwordHasher := hasher.NewBcrypt(hasher.DefaultCost)
	accessIssuer := token.NewIssuer(cfg.JWT.AccessSecret, cfg.JWT.AccessTTL())
	refreshIssuer := token.NewIssuer(cfg.JWT.RefreshSecret, cfg.JWT.RefreshTTL())

	var resetNotifier notifier.Notifier
	if cfg.SMTP.Host != "" {
		resetNotifier = notifier.NewSMTPNotifier(cfg.SMTP, cfg.Server.BaseURL)
	} else {
		resetNotifier = notifier.NewLogNotifier(cfg.Server.BaseURL)
	}

	authService := auth.NewService(userRepository, refreshTokenRepository, passwordHasher, accessIssuer, refreshIssuer)
	passwordService := password.NewService(userRepository, resetTokenRepository, refreshTokenRepository, passwordHasher, resetNotifier)

	authHandler := handler.NewAuthHandler(authService)
	passwordHandler := handler.NewPasswordHandler(passwordService)

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst))
		{
			authHandler.RegisterRoutes(authGroup)
			passwordHandler.RegisterRoutes(authGroup)
		}

		protected := v1.Group("/auth")
		protected.Use(middleware.AuthMiddleware(accessIssuer))
		{
			authHandler.RegisterProtectedRoutes(protected)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				authHandler.RegisterAdminRoutes(admin)
			}
		}
	}

	logger.Info("All routes initialized")

	return router, &Services{
		Auth:     authService,
		Password: passwordService,
	}
}
