// Package notifier delivers password reset tokens to users. Actual email
// transport is outside the auth core; the services only see the Notifier
// interface.
package notifier

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"library-auth/internal/config"
	"library-auth/internal/logger"
)

type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogNotifier writes the reset link to the application log. Used in
// development when no SMTP host is configured.
type LogNotifier struct {
	baseURL string
}

func NewLogNotifier(baseURL string) *LogNotifier {
	return &LogNotifier{baseURL: baseURL}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	logger.Info("Password reset link issued",
		zap.String("email", email),
		zap.String("reset_link", resetLink(n.baseURL, token)),
	)
	return nil
}

// SMTPNotifier sends the reset link over plain SMTP.
type SMTPNotifier struct {
	cfg     config.SMTPConfig
	baseURL string
}

func NewSMTPNotifier(cfg config.SMTPConfig, baseURL string) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, baseURL: baseURL}
}

func (n *SMTPNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Password reset\r\n\r\n"+
			"A password reset was requested for your account.\r\n"+
			"Follow this link within one hour to choose a new password:\r\n\r\n%s\r\n",
		n.cfg.From, email, resetLink(n.baseURL, token),
	)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.User != "" {
		auth = smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

func resetLink(baseURL, token string) string {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	return fmt.Sprintf("%s/reset-password?token=%s", baseURL, token)
}
