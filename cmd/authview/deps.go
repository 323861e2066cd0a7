// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/authview/authview/internal/idp"
	"github.com/authview/authview/internal/observability"
	"github.com/authview/authview/internal/store"
)

// ShellDeps contains injectable dependencies for the shell command.
// All fields with nil values will use their default implementations.
type ShellDeps struct {
	// StoreOpener connects the document store.
	// Default: store.Open
	StoreOpener func(ctx context.Context, opts store.Options) (store.DocumentStore, error)

	// ProviderFactory creates the identity provider.
	// Default: idp.New
	ProviderFactory func(opts ...idp.Option) (*idp.Provider, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ProfileBackoff paces CompleteProfile retries after a sign-up left
	// the profile record missing.
	// Default: exponential from 200ms, 4 retries
	ProfileBackoff func() retry.Backoff
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory creates a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ConnectBackoff paces connection attempts while the database starts.
	// Default: exponential from 500ms, capped at 30s total
	ConnectBackoff func() retry.Backoff
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]store.Migration, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *ShellDeps) withDefaults() ShellDeps {
	out := ShellDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreOpener == nil {
		out.StoreOpener = store.Open
	}
	if out.ProviderFactory == nil {
		out.ProviderFactory = idp.New
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, observability.WithLogger(logger))
		}
	}
	if out.ProfileBackoff == nil {
		out.ProfileBackoff = func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.NewExponential(200*time.Millisecond))
		}
	}
	return out
}

func (d *MigrateDeps) withDefaults() MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ConnectBackoff == nil {
		out.ConnectBackoff = func() retry.Backoff {
			return retry.WithMaxDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))
		}
	}
	return out
}
