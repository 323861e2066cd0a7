// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package screen

import (
	"context"
	"log/slog"

	"github.com/authview/authview/internal/credential"
	"github.com/authview/authview/internal/validation"
)

// ResetSentMessage is shown after a reset request regardless of whether the
// address is registered.
const ResetSentMessage = "If an account exists for this address, a reset link is on its way."

// ForgotPassword drives the password-reset request screen.
type ForgotPassword struct {
	gateway AuthGateway
	form    *credential.Form
	logger  *slog.Logger
	guard   guard
}

// NewForgotPassword creates the reset controller. Only the email field of
// its form is used.
func NewForgotPassword(gateway AuthGateway, opts ...Option) *ForgotPassword {
	o := buildOptions(opts)
	return &ForgotPassword{
		gateway: gateway,
		form:    credential.NewForm(validation.DefaultPasswordPolicy()),
		logger:  o.logger,
	}
}

// Form returns the bound credential form.
func (f *ForgotPassword) Form() *credential.Form { return f.form }

// Submit requests a reset message and returns the text to display.
func (f *ForgotPassword) Submit(ctx context.Context) (string, error) {
	snap := f.form.Snapshot()
	if !snap.EmailCheck.Valid {
		return "", incomplete("forgot_password", "email")
	}
	gen := f.guard.begin()
	err := f.gateway.ResetPassword(ctx, snap.Email)
	if !f.guard.live(gen) {
		return "", ErrDismissed
	}
	if err != nil {
		return "", err
	}
	f.form.Clear()
	return ResetSentMessage, nil
}

// Dismiss clears the form and abandons any in-flight request.
func (f *ForgotPassword) Dismiss() {
	f.guard.dismiss()
	f.form.Clear()
}
