// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package store

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/authview/authview/internal/profile"
)

// DefaultKeyPrefix namespaces every Redis key the store writes.
const DefaultKeyPrefix = "authview:"

// RedisStore keeps each profile in a hash and indexes owned content in a
// sorted set whose members are ULIDs, so lexical order is creation order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at url.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", BackendRedis).Wrap(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", BackendRedis).Wrap(err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) profileKey(uid string) string { return s.prefix + "profile:" + uid }
func (s *RedisStore) ownedKey(uid string) string   { return s.prefix + "owned:" + uid }
func (s *RedisStore) contentKey(id string) string  { return s.prefix + "content:" + id }

func redisFailure(operation, uid string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, redis.Nil):
		err = profile.ErrNotFound
	case errors.As(err, &netErr), errors.Is(err, io.EOF), errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = unavailable(err)
	}
	return oops.With("operation", operation, "uid", uid).Wrap(err)
}

func (s *RedisStore) GetRecord(ctx context.Context, uid string) (profile.Fields, error) {
	fields, err := s.client.HGetAll(ctx, s.profileKey(uid)).Result()
	if err != nil {
		return nil, redisFailure("get record", uid, err)
	}
	if len(fields) == 0 {
		return nil, redisFailure("get record", uid, redis.Nil)
	}
	return profile.Fields(fields), nil
}

func (s *RedisStore) SetRecord(ctx context.Context, uid string, fields profile.Fields) error {
	key := s.profileKey(uid)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, map[string]string(fields))
		}
		return nil
	})
	if err != nil {
		return redisFailure("set record", uid, err)
	}
	return nil
}

func (s *RedisStore) UpdateFields(ctx context.Context, uid string, fields profile.Fields) error {
	key := s.profileKey(uid)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return redis.Nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]string(fields))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return redisFailure("update fields", uid, err)
	}
	return nil
}

func (s *RedisStore) DeleteRecord(ctx context.Context, uid string) error {
	n, err := s.client.Del(ctx, s.profileKey(uid)).Result()
	if err != nil {
		return redisFailure("delete record", uid, err)
	}
	if n == 0 {
		return redisFailure("delete record", uid, redis.Nil)
	}
	return nil
}

// DeleteOwnedContent removes items one transaction at a time so progress
// survives a mid-way failure.
func (s *RedisStore) DeleteOwnedContent(ctx context.Context, uid string) (int, error) {
	owned := s.ownedKey(uid)
	ids, err := s.client.ZRange(ctx, owned, 0, -1).Result()
	if err != nil {
		return 0, redisFailure("delete owned content", uid, err)
	}
	removed := 0
	for _, id := range ids {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.contentKey(id))
			pipe.ZRem(ctx, owned, id)
			return nil
		})
		if err != nil {
			return removed, redisFailure("delete owned content", uid, err)
		}
		removed++
	}
	return removed, nil
}

func (s *RedisStore) AddOwnedContent(ctx context.Context, c profile.Content) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.contentKey(c.ID), map[string]string{
			"owner_uid":  c.OwnerUID,
			"kind":       c.Kind,
			"body":       c.Body,
			"created_at": c.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.ZAdd(ctx, s.ownedKey(c.OwnerUID), redis.Z{Score: 0, Member: c.ID})
		return nil
	})
	if err != nil {
		return redisFailure("add owned content", c.OwnerUID, err)
	}
	return nil
}

func (s *RedisStore) ListOwnedContent(ctx context.Context, uid string) ([]profile.Content, error) {
	ids, err := s.client.ZRange(ctx, s.ownedKey(uid), 0, -1).Result()
	if err != nil {
		return nil, redisFailure("list owned content", uid, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.contentKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, redisFailure("list owned content", uid, err)
	}

	items := make([]profile.Content, 0, len(ids))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		created, err := time.Parse(time.RFC3339Nano, h["created_at"])
		if err != nil {
			return nil, oops.With("operation", "decode owned content", "uid", uid, "id", ids[i]).Wrap(err)
		}
		items = append(items, profile.Content{
			ID:        ids[i],
			OwnerUID:  h["owner_uid"],
			Kind:      h["kind"],
			Body:      h["body"],
			CreatedAt: created,
		})
	}
	return items, nil
}

// Ping checks the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return redisFailure("ping", "", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
