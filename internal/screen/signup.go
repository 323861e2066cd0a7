// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package screen

import (
	"context"
	"log/slog"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/credential"
	"github.com/authview/authview/internal/validation"
	"github.com/authview/authview/pkg/errutil"
)

// SignUp drives account creation.
type SignUp struct {
	gateway AuthGateway
	session SessionView
	form    *credential.Form
	logger  *slog.Logger
	guard   guard
}

// NewSignUp creates the sign-up controller.
func NewSignUp(gateway AuthGateway, policy validation.PasswordPolicy, opts ...Option) *SignUp {
	o := buildOptions(opts)
	return &SignUp{gateway: gateway, session: o.session, form: credential.NewForm(policy), logger: o.logger}
}

// Form returns the bound credential form.
func (s *SignUp) Form() *credential.Form { return s.form }

// Submit creates the account. The result's Outcome tells whether the
// profile record was written. A failed sign-up leaves the fields intact.
//
// The provider reports the sign-in before the record exists, so the
// session's first profile load can miss it. When a session view is set it
// is reloaded once the record is written.
func (s *SignUp) Submit(ctx context.Context) (auth.SignUpResult, error) {
	snap := s.form.Snapshot()
	if !snap.SignUpComplete {
		return auth.SignUpResult{}, incomplete("sign_up", missingSignUp(snap)...)
	}

	gen := s.guard.begin()
	res, err := s.gateway.CreateUser(ctx, snap.Email, snap.FullName, snap.Password)
	if !s.guard.live(gen) {
		s.logger.DebugContext(ctx, "sign-up result discarded after dismissal")
		return res, ErrDismissed
	}
	if err != nil {
		return auth.SignUpResult{}, err
	}
	s.form.Clear()
	if res.Outcome == auth.AccountCreated && s.session != nil {
		if err := s.session.ReloadProfile(ctx); err != nil {
			errutil.Log(ctx, s.logger, slog.LevelWarn, "profile reload after sign-up failed", err)
		}
	}
	return res, nil
}

// Dismiss clears the form and abandons any in-flight submission.
func (s *SignUp) Dismiss() {
	s.guard.dismiss()
	s.form.Clear()
}

func missingSignUp(snap credential.Snapshot) []string {
	var missing []string
	if !snap.EmailCheck.Valid {
		missing = append(missing, "email")
	}
	if !snap.PasswordCheck.Valid {
		missing = append(missing, "password")
	}
	if !validation.PasswordsMatch(snap.Password, snap.ConfirmPassword) {
		missing = append(missing, "confirm_password")
	}
	if snap.FullName == "" {
		missing = append(missing, "full_name")
	}
	return missing
}
