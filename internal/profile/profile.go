// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package profile is the facade over the document store that holds one
// profile record per identity plus the content that identity owns.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Field names of a stored profile record.
const (
	FieldUID       = "uid"
	FieldName      = "name"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Fields is the raw document form of a record.
type Fields map[string]string

// Record is a decoded profile. UID always equals the owning identity's UID.
type Record struct {
	UID       string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fields encodes r for storage.
func (r Record) Fields() Fields {
	return Fields{
		FieldUID:       r.UID,
		FieldName:      r.Name,
		FieldCreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		FieldUpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Decode builds a Record from stored fields. Missing timestamps decode as
// the zero time; malformed ones are an error.
func Decode(uid string, f Fields) (*Record, error) {
	r := &Record{UID: uid, Name: f[FieldName]}
	if stored := f[FieldUID]; stored != "" && stored != uid {
		return nil, oops.With("uid", uid, "stored_uid", stored).Errorf("record uid mismatch")
	}
	for key, dst := range map[string]*time.Time{FieldCreatedAt: &r.CreatedAt, FieldUpdatedAt: &r.UpdatedAt} {
		raw := f[key]
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, oops.With("uid", uid, "field", key).Wrap(err)
		}
		*dst = t
	}
	return r, nil
}

// Content is one item owned by a profile.
type Content struct {
	ID        string
	OwnerUID  string
	Kind      string
	Body      string
	CreatedAt time.Time
}

// Store sentinels. Adapters wrap these without an oops code so the
// gateway's classification is the one callers see.
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("document store unavailable")
)

// DocumentStore is the external document database.
type DocumentStore interface {
	GetRecord(ctx context.Context, uid string) (Fields, error)
	SetRecord(ctx context.Context, uid string, fields Fields) error
	// UpdateFields merges fields into an existing record.
	UpdateFields(ctx context.Context, uid string, fields Fields) error
	DeleteRecord(ctx context.Context, uid string) error
	// DeleteOwnedContent reports how many items it removed, including
	// when it stops early with an error.
	DeleteOwnedContent(ctx context.Context, uid string) (int, error)
	AddOwnedContent(ctx context.Context, c Content) error
	ListOwnedContent(ctx context.Context, uid string) ([]Content, error)
}
