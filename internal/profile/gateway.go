// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package profile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authview/authview/pkg/errutil"
)

// Gateway wraps a DocumentStore with classified, single-attempt operations.
type Gateway struct {
	store  DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// NewGateway creates a Gateway over store.
func NewGateway(store DocumentStore, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, oops.Code("PROFILE_GATEWAY_INVALID").Errorf("document store is required")
	}
	g := &Gateway{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) fail(operation, uid string, err error) error {
	return oops.Code(string(Classify(err))).
		With("operation", operation).
		With("uid", uid).
		Wrapf(err, "%s", operation)
}

// CreateProfile writes the initial record for uid.
func (g *Gateway) CreateProfile(ctx context.Context, uid, name string) error {
	now := g.now()
	rec := Record{UID: uid, Name: name, CreatedAt: now, UpdatedAt: now}
	if err := g.store.SetRecord(ctx, uid, rec.Fields()); err != nil {
		return g.fail("create_profile", uid, err)
	}
	return nil
}

// UpdateName changes the display name on an existing record.
func (g *Gateway) UpdateName(ctx context.Context, uid, name string) error {
	fields := Fields{
		FieldName:      name,
		FieldUpdatedAt: g.now().UTC().Format(time.RFC3339Nano),
	}
	if err := g.store.UpdateFields(ctx, uid, fields); err != nil {
		return g.fail("update_name", uid, err)
	}
	return nil
}

// Get loads and decodes the record for uid.
func (g *Gateway) Get(ctx context.Context, uid string) (*Record, error) {
	fields, err := g.store.GetRecord(ctx, uid)
	if err != nil {
		return nil, g.fail("get_profile", uid, err)
	}
	rec, err := Decode(uid, fields)
	if err != nil {
		return nil, g.fail("get_profile", uid, err)
	}
	return rec, nil
}

// AddContent stores a new item owned by uid.
func (g *Gateway) AddContent(ctx context.Context, uid, kind, body string) (Content, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "note"
	}
	c := Content{
		ID:        ulid.Make().String(),
		OwnerUID:  uid,
		Kind:      kind,
		Body:      body,
		CreatedAt: g.now().UTC(),
	}
	if err := g.store.AddOwnedContent(ctx, c); err != nil {
		return Content{}, g.fail("add_content", uid, err)
	}
	return c, nil
}

// ListContent returns uid's content, oldest first.
func (g *Gateway) ListContent(ctx context.Context, uid string) ([]Content, error) {
	items, err := g.store.ListOwnedContent(ctx, uid)
	if err != nil {
		return nil, g.fail("list_content", uid, err)
	}
	return items, nil
}

// DeleteProfileAndOwnedData removes uid's owned content and then the
// record. Failing after something was already removed yields
// KindPartialDeletion; failing before anything was removed keeps the
// underlying classification. A record that is already gone counts as
// deleted.
func (g *Gateway) DeleteProfileAndOwnedData(ctx context.Context, uid string) error {
	removed, err := g.store.DeleteOwnedContent(ctx, uid)
	if err != nil {
		return g.cascadeFailure(ctx, uid, "owned_content", removed, err)
	}

	err = g.store.DeleteRecord(ctx, uid)
	switch {
	case err == nil:
	case Classify(err) == KindNotFound:
		g.logger.DebugContext(ctx, "profile record already absent", "uid", uid)
	default:
		return g.cascadeFailure(ctx, uid, "record", removed, err)
	}

	g.logger.InfoContext(ctx, "profile deleted", "uid", uid, "content_removed", removed)
	return nil
}

func (g *Gateway) cascadeFailure(ctx context.Context, uid, stage string, removed int, err error) error {
	if removed == 0 {
		return g.fail("delete_profile", uid, err)
	}
	partial := oops.Code(string(KindPartialDeletion)).
		With("operation", "delete_profile").
		With("uid", uid).
		With("stage", stage).
		With("content_removed", removed).
		With("cause_kind", string(Classify(err))).
		Wrapf(err, "delete_profile: partial cascade")
	errutil.Log(ctx, g.logger, slog.LevelWarn, "cascade deletion incomplete", partial)
	return partial
}
