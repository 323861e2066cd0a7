// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package screen

import (
	"context"
	"log/slog"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/credential"
	"github.com/authview/authview/internal/validation"
)

// SignIn drives the email/password sign-in screen.
type SignIn struct {
	gateway AuthGateway
	form    *credential.Form
	logger  *slog.Logger
	guard   guard
}

// NewSignIn creates the sign-in controller.
func NewSignIn(gateway AuthGateway, policy validation.PasswordPolicy, opts ...Option) *SignIn {
	o := buildOptions(opts)
	return &SignIn{gateway: gateway, form: credential.NewForm(policy), logger: o.logger}
}

// Form returns the bound credential form.
func (s *SignIn) Form() *credential.Form { return s.form }

// Submit signs in with the form content. On failure the form is reset per
// the failure kind: a wrong password clears the password only, anything
// else clears email and password. On success the form is cleared.
func (s *SignIn) Submit(ctx context.Context) (*auth.Identity, error) {
	snap := s.form.Snapshot()
	if !snap.LoginComplete {
		var missing []string
		if !snap.EmailCheck.Valid {
			missing = append(missing, "email")
		}
		if snap.Password == "" {
			missing = append(missing, "password")
		}
		return nil, incomplete("sign_in", missing...)
	}

	gen := s.guard.begin()
	id, err := s.gateway.Authenticate(ctx, snap.Email, snap.Password)
	if !s.guard.live(gen) {
		s.logger.DebugContext(ctx, "sign-in result discarded after dismissal")
		return nil, ErrDismissed
	}
	if err != nil {
		s.form.ApplyAuthFailure(auth.KindOf(err))
		return nil, err
	}
	s.form.Clear()
	return id, nil
}

// Dismiss clears the form and abandons any in-flight submission.
func (s *SignIn) Dismiss() {
	s.guard.dismiss()
	s.form.Clear()
}
