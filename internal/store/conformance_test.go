// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/pkg/errutil"
)

// exerciseDocumentStore checks behaviour every backend must share.
func exerciseDocumentStore(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("record lifecycle", func(t *testing.T) {
		_, err := s.GetRecord(ctx, "u1")
		assert.ErrorIs(t, err, profile.ErrNotFound)

		require.NoError(t, s.SetRecord(ctx, "u1", profile.Fields{"uid": "u1", "name": "Ann"}))
		got, err := s.GetRecord(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, profile.Fields{"uid": "u1", "name": "Ann"}, got)

		require.NoError(t, s.UpdateFields(ctx, "u1", profile.Fields{"name": "Annie"}))
		got, err = s.GetRecord(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Annie", got["name"])
		assert.Equal(t, "u1", got["uid"], "update merges")

		require.NoError(t, s.SetRecord(ctx, "u1", profile.Fields{"uid": "u1"}))
		got, err = s.GetRecord(ctx, "u1")
		require.NoError(t, err)
		assert.NotContains(t, got, "name", "set replaces")

		require.NoError(t, s.DeleteRecord(ctx, "u1"))
		assert.ErrorIs(t, s.DeleteRecord(ctx, "u1"), profile.ErrNotFound)
	})

	t.Run("update of missing record", func(t *testing.T) {
		err := s.UpdateFields(ctx, "ghost", profile.Fields{"name": "Boo"})
		assert.ErrorIs(t, err, profile.ErrNotFound)
		errutil.AssertErrorContext(t, err, "uid", "ghost")
		assert.Empty(t, errutil.Code(err), "adapters leave classification to the gateway")
	})

	t.Run("owned content", func(t *testing.T) {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		items := []profile.Content{
			{ID: "01J0000000000000000000000B", OwnerUID: "u2", Kind: "note", Body: "second", CreatedAt: at},
			{ID: "01J0000000000000000000000A", OwnerUID: "u2", Kind: "note", Body: "first", CreatedAt: at},
			{ID: "01J0000000000000000000000C", OwnerUID: "u3", Kind: "note", Body: "other", CreatedAt: at},
		}
		for _, c := range items {
			require.NoError(t, s.AddOwnedContent(ctx, c))
		}

		listed, err := s.ListOwnedContent(ctx, "u2")
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "first", listed[0].Body)
		assert.True(t, at.Equal(listed[1].CreatedAt))

		n, err := s.DeleteOwnedContent(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		listed, err = s.ListOwnedContent(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, listed)

		n, err = s.DeleteOwnedContent(ctx, "u2")
		require.NoError(t, err)
		assert.Zero(t, n)

		listed, err = s.ListOwnedContent(ctx, "u3")
		require.NoError(t, err)
		assert.Len(t, listed, 1, "other owners untouched")
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseDocumentStore(t, NewMemoryStore())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().GetRecord(ctx, "u1")
	assert.ErrorIs(t, err, profile.ErrUnavailable)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fields := profile.Fields{"name": "Ann"}
	require.NoError(t, s.SetRecord(ctx, "u1", fields))
	fields["name"] = "mutated"

	got, err := s.GetRecord(ctx, "u1")
	require.NoError(t, err)
	got["name"] = "mutated again"

	again, err := s.GetRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", again["name"])
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "test:"), mr
}

func TestRedisStore(t *testing.T) {
	s, mr := newMiniredisStore(t)
	exerciseDocumentStore(t, s)

	require.NoError(t, s.SetRecord(context.Background(), "u9", profile.Fields{"name": "Key"}))
	assert.True(t, mr.Exists("test:profile:u9"))
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStoreWithClient(client, "")

	require.NoError(t, s.SetRecord(context.Background(), "u1", profile.Fields{"name": "Ann"}))
	assert.True(t, mr.Exists(DefaultKeyPrefix+"profile:u1"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newMiniredisStore(t)
	mr.Close()

	_, err := s.GetRecord(context.Background(), "u1")
	assert.ErrorIs(t, err, profile.ErrUnavailable)
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr(), KeyPrefix: "x:"})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Backend: "cassandra"})
	errutil.AssertErrorCode(t, err, "STORE_BACKEND_INVALID")

	_, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "::bad::"})
	errutil.AssertErrorCode(t, err, "STORE_CONNECT_FAILED")
}
