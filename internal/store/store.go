// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package store provides document store adapters for profile records and
// owned content: in-memory, PostgreSQL and Redis.
//
// Adapters report failures by wrapping profile.ErrNotFound or
// profile.ErrUnavailable with oops context but no code, leaving
// classification to the profile gateway.
package store

import (
	"context"
	"fmt"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/profile"
)

// Backend names a store implementation.
type Backend string

// Supported backends.
const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend     Backend
	DatabaseURL string
	RedisURL    string
	KeyPrefix   string
}

// DocumentStore is a profile.DocumentStore with lifecycle hooks.
type DocumentStore interface {
	profile.DocumentStore
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend named by opts.
func Open(ctx context.Context, opts Options) (DocumentStore, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.KeyPrefix)
	default:
		return nil, oops.Code("STORE_BACKEND_INVALID").
			With("backend", opts.Backend).
			Errorf("unknown store backend %q", opts.Backend)
	}
}

// unavailable marks err as a reachability failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", profile.ErrUnavailable, err)
}
