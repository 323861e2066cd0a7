// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package screen binds the credential form, the gateways, the session
// observer and the re-authentication coordinator into per-screen
// controllers. It renders nothing; a presentation layer drives it.
package screen

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/internal/session"
)

// AuthGateway is the auth.Gateway surface the screens call.
type AuthGateway interface {
	Authenticate(ctx context.Context, email, password string) (*auth.Identity, error)
	CreateUser(ctx context.Context, email, name, password string) (auth.SignUpResult, error)
	ResetPassword(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, newPassword string) error
	DeleteAccount(ctx context.Context) (auth.DeletionResult, error)
	SignOut(ctx context.Context) error
}

// ProfileGateway is the profile.Gateway surface the profile screen calls.
type ProfileGateway interface {
	UpdateName(ctx context.Context, uid, name string) error
	AddContent(ctx context.Context, uid, kind, body string) (profile.Content, error)
	ListContent(ctx context.Context, uid string) ([]profile.Content, error)
}

// SessionView reads and refreshes the observed session.
type SessionView interface {
	Current() session.State
	ReloadProfile(ctx context.Context) error
}

// Option configures a controller.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	session SessionView
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSession lets the sign-up screen refresh the observed profile once
// the new account's record is written.
func WithSession(v SessionView) Option {
	return func(o *options) { o.session = v }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// guard tracks screen generations. Dismiss starts a new generation so a
// result arriving for an abandoned submission is not applied.
type guard struct {
	mu  sync.Mutex
	gen uint64
}

func (g *guard) begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

func (g *guard) live(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen == gen
}

func (g *guard) dismiss() {
	g.mu.Lock()
	g.gen++
	g.mu.Unlock()
}

// ErrDismissed is returned when the screen was dismissed while its request
// was in flight. The request may still have taken effect at the provider.
var ErrDismissed = oops.Code("SCREEN_DISMISSED").Errorf("screen dismissed before the result arrived")

func incomplete(screen string, fields ...string) error {
	return oops.Code("SCREEN_INCOMPLETE").
		With("screen", screen).
		With("fields", fields).
		Errorf("form is not complete")
}
