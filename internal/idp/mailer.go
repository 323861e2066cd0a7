// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package idp

import (
	"context"
	"log/slog"
)

// Mailer delivers password-reset codes out of band.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, code string) error
}

// LogMailer writes reset codes to a logger instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

// SendPasswordReset logs the code at INFO.
func (m LogMailer) SendPasswordReset(ctx context.Context, email, code string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "password reset code issued", "email", email, "code", code)
	return nil
}
