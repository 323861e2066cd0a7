// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/profile"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]profile.Fields
	content map[string]map[string]profile.Content // owner uid -> id -> item
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]profile.Fields),
		content: make(map[string]map[string]profile.Content),
	}
}

func notFound(operation, uid string) error {
	return oops.With("operation", operation, "uid", uid).Wrap(profile.ErrNotFound)
}

func (s *MemoryStore) GetRecord(ctx context.Context, uid string) (profile.Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[uid]
	if !ok {
		return nil, notFound("get record", uid)
	}
	return maps.Clone(rec), nil
}

func (s *MemoryStore) SetRecord(ctx context.Context, uid string, fields profile.Fields) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[uid] = maps.Clone(fields)
	return nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, uid string, fields profile.Fields) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return notFound("update fields", uid)
	}
	maps.Copy(rec, fields)
	return nil
}

func (s *MemoryStore) DeleteRecord(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uid]; !ok {
		return notFound("delete record", uid)
	}
	delete(s.records, uid)
	return nil
}

func (s *MemoryStore) DeleteOwnedContent(ctx context.Context, uid string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.content[uid])
	delete(s.content, uid)
	return n, nil
}

func (s *MemoryStore) AddOwnedContent(ctx context.Context, c profile.Content) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.content[c.OwnerUID]
	if !ok {
		items = make(map[string]profile.Content)
		s.content[c.OwnerUID] = items
	}
	items[c.ID] = c
	return nil
}

func (s *MemoryStore) ListOwnedContent(ctx context.Context, uid string) ([]profile.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := slices.Collect(maps.Values(s.content[uid]))
	slices.SortFunc(items, func(a, b profile.Content) int { return strings.Compare(a.ID, b.ID) })
	return items, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
