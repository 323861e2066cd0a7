// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/config"
	"github.com/authview/authview/internal/idp"
	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/internal/reauth"
	"github.com/authview/authview/internal/screen"
	"github.com/authview/authview/internal/session"
	"github.com/authview/authview/internal/store"
	"github.com/authview/authview/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// app is the wired process: provider, store, gateways, session observer,
// coordinator and screens.
type app struct {
	cfg    config.Config
	deps   ShellDeps
	logger *slog.Logger

	store       store.DocumentStore
	metricsSrv  ObservabilityServer
	provider    *idp.Provider
	auth        *auth.Gateway
	profiles    *profile.Gateway
	observer    *session.Observer
	coordinator *reauth.Coordinator

	signIn  *screen.SignIn
	signUp  *screen.SignUp
	forgot  *screen.ForgotPassword
	profile *screen.Profile

	closers []func()
	wg      sync.WaitGroup
}

// newApp wires every component. mailer receives password-reset codes. The
// observer is created but not started.
func newApp(ctx context.Context, cfg config.Config, deps ShellDeps, logger *slog.Logger, mailer idp.Mailer) (*app, error) {
	a := &app{cfg: cfg, deps: deps, logger: logger}
	if err := a.wire(ctx, mailer); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, mailer idp.Mailer) (err error) {
	cfg, deps, logger := a.cfg, a.deps, a.logger

	a.store, err = deps.StoreOpener(ctx, cfg.Store.Options())
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() {
		if cerr := a.store.Close(); cerr != nil {
			errutil.LogError(logger, "closing document store", cerr)
		}
	})

	authOpts := []auth.Option{auth.WithLogger(logger)}
	sessionOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		if err := a.startMetrics(); err != nil {
			return err
		}
		authOpts = append(authOpts, auth.WithRecorder(a.metricsSrv.Metrics()))
		sessionOpts = append(sessionOpts, session.WithRecorder(a.metricsSrv.Metrics()))
	}

	a.provider, err = deps.ProviderFactory(
		idp.WithLogger(logger),
		idp.WithPasswordPolicy(cfg.Password),
		idp.WithLockout(idp.Lockout{
			Threshold: cfg.Provider.LockoutThreshold,
			Duration:  cfg.Provider.LockoutDuration,
		}),
		idp.WithRecentLoginWindow(cfg.Provider.RecentLoginWindow),
		idp.WithMailer(mailer),
	)
	if err != nil {
		return err
	}

	if a.profiles, err = profile.NewGateway(a.store, profile.WithLogger(logger)); err != nil {
		return err
	}
	if a.auth, err = auth.NewGateway(a.provider, a.profiles, authOpts...); err != nil {
		return err
	}
	if a.observer, err = session.NewObserver(a.provider, a.profiles, sessionOpts...); err != nil {
		return err
	}
	a.closers = append(a.closers, a.observer.Stop)
	if a.coordinator, err = reauth.NewCoordinator(a.auth, reauth.WithLogger(logger)); err != nil {
		return err
	}

	screenOpts := []screen.Option{screen.WithLogger(logger)}
	a.signIn = screen.NewSignIn(a.auth, cfg.Password, screenOpts...)
	a.signUp = screen.NewSignUp(a.auth, cfg.Password, append(screenOpts, screen.WithSession(a.observer))...)
	a.forgot = screen.NewForgotPassword(a.auth, screenOpts...)
	a.profile, err = screen.NewProfile(a.auth, a.profiles, a.observer, a.coordinator, cfg.Password, screenOpts...)
	return err
}

func (a *app) startMetrics() error {
	a.metricsSrv = a.deps.ObservabilityServerFactory(a.cfg.Metrics.Addr, a.store.Ping, a.logger)
	errCh, err := a.metricsSrv.Start()
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for err := range errCh {
			errutil.LogError(a.logger, "observability server failed", err)
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metricsSrv.Stop(ctx); err != nil {
			errutil.LogError(a.logger, "stopping observability server", err)
		}
	})
	return nil
}

// close releases everything in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	a.wg.Wait()
}
