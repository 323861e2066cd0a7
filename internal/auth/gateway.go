// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/logging"
	"github.com/authview/authview/pkg/errutil"
)

// SignUpOutcome distinguishes a complete sign-up from one whose profile
// record is still missing.
type SignUpOutcome string

// Sign-up outcomes.
const (
	AccountCreated               SignUpOutcome = "account_created"
	AccountCreatedProfilePending SignUpOutcome = "account_created_profile_pending"
)

// SignUpResult is returned by CreateUser when the identity exists.
type SignUpResult struct {
	Identity Identity
	Outcome  SignUpOutcome
	// ProfileErr is the store failure behind AccountCreatedProfilePending.
	ProfileErr error
}

// DeletionOutcome distinguishes a full account deletion from one whose
// stored data survived the identity.
type DeletionOutcome string

// Deletion outcomes.
const (
	AccountDeleted            DeletionOutcome = "account_deleted"
	AccountDeletedDataPending DeletionOutcome = "account_deleted_data_pending"
)

// DeletionResult is returned by DeleteAccount once the identity is gone.
type DeletionResult struct {
	UID     string
	Outcome DeletionOutcome
	// DataErr is the store failure behind AccountDeletedDataPending.
	DataErr error
}

// Recorder receives one observation per gateway call.
type Recorder interface {
	RecordOperation(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string) {}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// Gateway performs single-attempt identity operations and classifies
// their failures. It never retries.
type Gateway struct {
	provider IdentityProvider
	profiles Profiles
	logger   *slog.Logger
	recorder Recorder
}

// NewGateway creates a Gateway over provider and profiles.
func NewGateway(provider IdentityProvider, profiles Profiles, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, oops.Code("AUTH_GATEWAY_INVALID").Errorf("identity provider is required")
	}
	if profiles == nil {
		return nil, oops.Code("AUTH_GATEWAY_INVALID").Errorf("profile store is required")
	}
	g := &Gateway{
		provider: provider,
		profiles: profiles,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) finish(ctx context.Context, operation string, err error) error {
	if err == nil {
		g.recorder.RecordOperation(operation, "ok")
		return nil
	}
	classified := classify(operation, err)
	kind := KindOf(classified)
	g.recorder.RecordOperation(operation, strings.ToLower(string(kind)))
	level := slog.LevelDebug
	if kind == KindUnknown || kind == KindNetwork {
		level = slog.LevelWarn
	}
	errutil.Log(ctx, g.logger, level, operation+" failed", classified)
	return classified
}

// Authenticate signs in with email and password.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	return g.SignInWith(ctx, PasswordCredential(email, password))
}

// SignInWith signs in with any provider credential, including federated
// ID tokens.
func (g *Gateway) SignInWith(ctx context.Context, cred Credential) (*Identity, error) {
	id, err := g.provider.Authenticate(ctx, cred)
	if err != nil {
		return nil, g.finish(ctx, "authenticate", err)
	}
	ctx = logging.WithUID(ctx, id.UID)
	g.logger.InfoContext(ctx, "signed in", "provider", cred.Provider)
	return id, g.finish(ctx, "authenticate", nil)
}

// CreateUser registers a new identity and then its profile record. A nil
// error means the identity exists; check Outcome for the profile step.
func (g *Gateway) CreateUser(ctx context.Context, email, name, password string) (SignUpResult, error) {
	id, err := g.provider.CreateUser(ctx, email, password, name)
	if err != nil {
		return SignUpResult{}, g.finish(ctx, "create_user", err)
	}
	return g.completeProfile(logging.WithUID(ctx, id.UID), "create_user", *id, name), nil
}

// CompleteProfile retries profile creation for an identity left in
// AccountCreatedProfilePending. Callers decide whether and when to call it.
func (g *Gateway) CompleteProfile(ctx context.Context, id Identity) SignUpResult {
	return g.completeProfile(logging.WithUID(ctx, id.UID), "complete_profile", id, id.DisplayName)
}

func (g *Gateway) completeProfile(ctx context.Context, operation string, id Identity, name string) SignUpResult {
	if err := g.profiles.CreateProfile(ctx, id.UID, name); err != nil {
		g.recorder.RecordOperation(operation, string(AccountCreatedProfilePending))
		errutil.Log(ctx, g.logger, slog.LevelWarn, "identity created without profile record", err)
		return SignUpResult{Identity: id, Outcome: AccountCreatedProfilePending, ProfileErr: err}
	}
	g.recorder.RecordOperation(operation, string(AccountCreated))
	return SignUpResult{Identity: id, Outcome: AccountCreated}
}

// ResetPassword asks the provider to send a reset message. It succeeds for
// unregistered addresses too.
func (g *Gateway) ResetPassword(ctx context.Context, email string) error {
	return g.finish(ctx, "reset_password", g.provider.SendPasswordReset(ctx, email))
}

// ChangePassword sets a new password for the signed-in user.
func (g *Gateway) ChangePassword(ctx context.Context, newPassword string) error {
	return g.finish(ctx, "change_password", g.provider.UpdatePassword(ctx, newPassword))
}

// DeleteUser deletes the signed-in identity only.
func (g *Gateway) DeleteUser(ctx context.Context) error {
	return g.finish(ctx, "delete_user", g.provider.DeleteCurrentUser(ctx))
}

// DeleteAccount deletes the signed-in identity and then its profile and
// owned content. The identity goes first so a re-authentication demand
// leaves everything untouched.
func (g *Gateway) DeleteAccount(ctx context.Context) (DeletionResult, error) {
	current := g.provider.CurrentUser()
	if current == nil {
		return DeletionResult{}, g.finish(ctx, "delete_account",
			NewProviderError(CodeNoCurrentUser, "no signed-in user"))
	}
	uid := current.UID
	ctx = logging.WithUID(ctx, uid)

	if err := g.provider.DeleteCurrentUser(ctx); err != nil {
		return DeletionResult{}, g.finish(ctx, "delete_account", err)
	}

	if err := g.profiles.DeleteProfileAndOwnedData(ctx, uid); err != nil {
		g.recorder.RecordOperation("delete_account", string(AccountDeletedDataPending))
		errutil.Log(ctx, g.logger, slog.LevelWarn, "identity deleted but stored data remains", err)
		return DeletionResult{UID: uid, Outcome: AccountDeletedDataPending, DataErr: err}, nil
	}
	g.recorder.RecordOperation("delete_account", string(AccountDeleted))
	g.logger.InfoContext(ctx, "account deleted")
	return DeletionResult{UID: uid, Outcome: AccountDeleted}, nil
}

// LinkedProviders returns the current identity's providers, empty when
// signed out.
func (g *Gateway) LinkedProviders() []ProviderType {
	providers := g.provider.LinkedProviders()
	if providers == nil {
		return []ProviderType{}
	}
	return providers
}

// CurrentUser returns the signed-in identity or nil.
func (g *Gateway) CurrentUser() *Identity {
	return g.provider.CurrentUser()
}

// Reauthenticate answers a fresh-credential challenge for one provider.
func (g *Gateway) Reauthenticate(ctx context.Context, cred Credential) error {
	return g.finish(ctx, "reauthenticate", g.provider.Reauthenticate(ctx, cred))
}

// SignOut ends the current session.
func (g *Gateway) SignOut(ctx context.Context) error {
	return g.finish(ctx, "sign_out", g.provider.SignOut(ctx))
}
