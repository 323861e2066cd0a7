// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/authview/authview/internal/profile"
)

// DefaultDeleteBatch bounds how many content rows one DELETE removes.
const DefaultDeleteBatch = 100

// pgxPool is satisfied by *pgxpool.Pool and pgxmock pools.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps profile fields as JSONB and content as rows.
type PostgresStore struct {
	pool        pgxPool
	deleteBatch int
}

// NewPostgresStore opens a pool on dsn and verifies connectivity.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", BackendPostgres).Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").With("backend", BackendPostgres).Wrap(err)
	}
	return NewPostgresStoreWithPool(pool), nil
}

// NewPostgresStoreWithPool wraps an existing pool.
func NewPostgresStoreWithPool(pool pgxPool) *PostgresStore {
	return &PostgresStore{pool: pool, deleteBatch: DefaultDeleteBatch}
}

// pgFailure wraps err for the profile gateway. Connection-class server
// errors and client-side network failures become ErrUnavailable.
func pgFailure(operation, uid string, err error) error {
	var pgErr *pgconn.PgError
	var netErr net.Error
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = profile.ErrNotFound
	case errors.As(err, &pgErr) && (pgerrcode.IsConnectionException(pgErr.Code) ||
		pgerrcode.IsOperatorIntervention(pgErr.Code) ||
		pgerrcode.IsInsufficientResources(pgErr.Code)):
		err = unavailable(err)
	case errors.As(err, &connErr), errors.As(err, &netErr), pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = unavailable(err)
	}
	return oops.With("operation", operation, "uid", uid).Wrap(err)
}

func (s *PostgresStore) GetRecord(ctx context.Context, uid string) (profile.Fields, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT fields FROM profiles WHERE uid = $1`, uid).Scan(&raw)
	if err != nil {
		return nil, pgFailure("get record", uid, err)
	}
	fields := profile.Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, oops.With("operation", "decode record", "uid", uid).Wrap(err)
	}
	return fields, nil
}

func (s *PostgresStore) SetRecord(ctx context.Context, uid string, fields profile.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return oops.With("operation", "encode record", "uid", uid).Wrap(err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (uid, fields) VALUES ($1, $2::jsonb)
		 ON CONFLICT (uid) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`,
		uid, string(raw))
	if err != nil {
		return pgFailure("set record", uid, err)
	}
	return nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, uid string, fields profile.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return oops.With("operation", "encode fields", "uid", uid).Wrap(err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET fields = fields || $2::jsonb, updated_at = now() WHERE uid = $1`,
		uid, string(raw))
	if err != nil {
		return pgFailure("update fields", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return pgFailure("update fields", uid, pgx.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE uid = $1`, uid)
	if err != nil {
		return pgFailure("delete record", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return pgFailure("delete record", uid, pgx.ErrNoRows)
	}
	return nil
}

// DeleteOwnedContent removes content in batches so a failure midway still
// reports how much was removed.
func (s *PostgresStore) DeleteOwnedContent(ctx context.Context, uid string) (int, error) {
	removed := 0
	for {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM owned_content WHERE id IN (
			   SELECT id FROM owned_content WHERE owner_uid = $1 ORDER BY id LIMIT $2)`,
			uid, s.deleteBatch)
		if err != nil {
			return removed, pgFailure("delete owned content", uid, err)
		}
		n := int(tag.RowsAffected())
		removed += n
		if n < s.deleteBatch {
			return removed, nil
		}
	}
}

func (s *PostgresStore) AddOwnedContent(ctx context.Context, c profile.Content) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO owned_content (id, owner_uid, kind, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OwnerUID, c.Kind, c.Body, c.CreatedAt)
	if err != nil {
		return pgFailure("add owned content", c.OwnerUID, err)
	}
	return nil
}

func (s *PostgresStore) ListOwnedContent(ctx context.Context, uid string) ([]profile.Content, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_uid, kind, body, created_at FROM owned_content WHERE owner_uid = $1 ORDER BY id`,
		uid)
	if err != nil {
		return nil, pgFailure("list owned content", uid, err)
	}
	defer rows.Close()

	var items []profile.Content
	for rows.Next() {
		var c profile.Content
		if err := rows.Scan(&c.ID, &c.OwnerUID, &c.Kind, &c.Body, &c.CreatedAt); err != nil {
			return nil, pgFailure("scan owned content", uid, err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pgFailure("list owned content", uid, err)
	}
	return items, nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return pgFailure("ping", "", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
