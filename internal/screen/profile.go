// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package screen

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/logging"
	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/internal/reauth"
	"github.com/authview/authview/internal/session"
	"github.com/authview/authview/internal/validation"
)

// Profile drives the signed-in account screen. Sensitive operations go
// through the re-authentication coordinator.
type Profile struct {
	auth        AuthGateway
	profiles    ProfileGateway
	session     SessionView
	coordinator *reauth.Coordinator
	policy      validation.PasswordPolicy
	logger      *slog.Logger

	mu           sync.Mutex
	lastDeletion *auth.DeletionResult
}

// NewProfile creates the profile controller.
func NewProfile(
	authGateway AuthGateway,
	profiles ProfileGateway,
	sessionView SessionView,
	coordinator *reauth.Coordinator,
	policy validation.PasswordPolicy,
	opts ...Option,
) (*Profile, error) {
	if authGateway == nil || profiles == nil || sessionView == nil || coordinator == nil {
		return nil, oops.Code("SCREEN_PROFILE_INVALID").Errorf("profile screen dependencies are required")
	}
	o := buildOptions(opts)
	return &Profile{
		auth:        authGateway,
		profiles:    profiles,
		session:     sessionView,
		coordinator: coordinator,
		policy:      policy,
		logger:      o.logger,
	}, nil
}

// Coordinator exposes the coordinator so a presentation layer can prompt
// for provider and credential.
func (p *Profile) Coordinator() *reauth.Coordinator { return p.coordinator }

func (p *Profile) signedIn(ctx context.Context) (context.Context, string, error) {
	st := p.session.Current()
	if st.Status != session.StatusSignedIn {
		return ctx, "", oops.Code("SCREEN_SIGNED_OUT").
			With("status", st.Status.String()).
			Errorf("no signed-in user")
	}
	return logging.WithUID(ctx, st.UID()), st.UID(), nil
}

// UpdateName changes the display name on the profile record and reloads
// the session so subscribers see it.
func (p *Profile) UpdateName(ctx context.Context, name string) error {
	ctx, uid, err := p.signedIn(ctx)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return incomplete("profile", "name")
	}
	if err := p.profiles.UpdateName(ctx, uid, name); err != nil {
		return err
	}
	return p.session.ReloadProfile(ctx)
}

// ChangePassword validates newPassword against the policy and updates it.
// deferred is true when the provider demanded re-authentication; the
// change then runs once the coordinator is unlocked.
func (p *Profile) ChangePassword(ctx context.Context, newPassword, confirm string) (deferred bool, err error) {
	if _, _, err := p.signedIn(ctx); err != nil {
		return false, err
	}
	if res := p.policy.Check(newPassword); !res.Valid {
		return false, oops.Code("SCREEN_INVALID_PASSWORD").With("reason", res.Message).Errorf("%s", res.Message)
	}
	if !validation.PasswordsMatch(newPassword, confirm) {
		return false, oops.Code("SCREEN_INVALID_PASSWORD").
			With("reason", validation.MsgPasswordsMismatch).
			Errorf("%s", validation.MsgPasswordsMismatch)
	}
	return p.coordinator.Run(ctx, "change_password", func(ctx context.Context) error {
		return p.auth.ChangePassword(ctx, newPassword)
	})
}

// DeleteAccount deletes the identity and then its stored data. When
// re-authentication is needed deferred is true and the deletion result is
// available from LastDeletion after the coordinator runs it.
func (p *Profile) DeleteAccount(ctx context.Context) (deferred bool, err error) {
	if _, _, err := p.signedIn(ctx); err != nil {
		return false, err
	}
	return p.coordinator.Run(ctx, "delete_account", func(ctx context.Context) error {
		res, err := p.auth.DeleteAccount(ctx)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.lastDeletion = &res
		p.mu.Unlock()
		if res.Outcome == auth.AccountDeletedDataPending {
			p.logger.WarnContext(ctx, "account deleted with data pending cleanup", "uid", res.UID)
		}
		return nil
	})
}

// LastDeletion returns the most recent completed deletion.
func (p *Profile) LastDeletion() (auth.DeletionResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastDeletion == nil {
		return auth.DeletionResult{}, false
	}
	return *p.lastDeletion, true
}

// SignOut ends the session.
func (p *Profile) SignOut(ctx context.Context) error {
	return p.auth.SignOut(ctx)
}

// AddNote stores a note owned by the signed-in user.
func (p *Profile) AddNote(ctx context.Context, body string) (profile.Content, error) {
	ctx, uid, err := p.signedIn(ctx)
	if err != nil {
		return profile.Content{}, err
	}
	if strings.TrimSpace(body) == "" {
		return profile.Content{}, incomplete("profile", "body")
	}
	return p.profiles.AddContent(ctx, uid, "note", body)
}

// Notes lists the signed-in user's content.
func (p *Profile) Notes(ctx context.Context) ([]profile.Content, error) {
	ctx, uid, err := p.signedIn(ctx)
	if err != nil {
		return nil, err
	}
	return p.profiles.ListContent(ctx, uid)
}
