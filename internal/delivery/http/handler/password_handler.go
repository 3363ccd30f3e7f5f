package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"library-auth/internal/usecase/password"
	"library-auth/pkg/utils"
)

type PasswordHandler struct {
	service *password.Service
}

func NewPasswordHandler(service *password.Service) *PasswordHandler {
	return &PasswordHandler{service: service}
}

func (h *PasswordHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/forgot-password", h.ForgotPassword)
	router.POST("/reset-password", h.ResetPassword)
	router.GET("/validate-reset-token/:token", h.ValidateResetToken)
}

func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req password.ForgotPasswordRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = utils.SanitizeEmail(req.Email)

	if err := h.service.ForgotPassword(c.Request.Context(), &req); err != nil {
		respondWithError(c, err)
		return
	}

	// Identical wording whether or not the email is registered.
	utils.SuccessResponse(c, http.StatusOK, "If the email exists, a password reset link has been sent", nil)
}

func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req password.ResetPasswordRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), &req); err != nil {
		respondWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Password has been reset successfully", nil)
}

func (h *PasswordHandler) ValidateResetToken(c *gin.Context) {
	if err := h.service.ValidateResetToken(c.Request.Context(), c.Param("token")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}
