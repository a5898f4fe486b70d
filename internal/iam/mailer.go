// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package iam

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailer delivers account emails. The API never returns raw verification
// or reset tokens in responses; a Mailer is the only way they leave the
// server.
type Mailer interface {
	// SendVerification delivers the email-verification link.
	SendVerification(ctx context.Context, user *User, token string) error

	// SendPasswordReset delivers the password-reset link.
	SendPasswordReset(ctx context.Context, user *User, token string) error
}

// LogMailer writes the links to the structured log instead of sending
// email. This is the development and CI delivery mechanism; production
// deployments swap in a real provider behind the same interface.
type LogMailer struct {
	appURL string
	logger *slog.Logger
}

// NewLogMailer constructs a LogMailer. appURL is the public base URL used
// to build links (e.g. "https://app.mlforge.dev").
func NewLogMailer(appURL string, logger *slog.Logger) *LogMailer {
	return &LogMailer{appURL: appURL, logger: logger}
}

// SendVerification logs the verification link for the account.
func (mailer *LogMailer) SendVerification(_ context.Context, user *User, token string) error {
	mailer.logger.Info("mail_verification_link",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("link", fmt.Sprintf("%s/verify-email?token=%s", mailer.appURL, token)),
	)
	return nil
}

// SendPasswordReset logs the reset link for the account.
func (mailer *LogMailer) SendPasswordReset(_ context.Context, user *User, token string) error {
	mailer.logger.Info("mail_password_reset_link",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("link", fmt.Sprintf("%s/reset-password?token=%s", mailer.appURL, token)),
	)
	return nil
}
