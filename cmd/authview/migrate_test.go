// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authview/authview/internal/store"
	"github.com/authview/authview/pkg/errutil"
)

type mockMigrator struct {
	mock.Mock
}

func (m *mockMigrator) Up() error         { return m.Called().Error(0) }
func (m *mockMigrator) Down() error       { return m.Called().Error(0) }
func (m *mockMigrator) Steps(n int) error { return m.Called(n).Error(0) }
func (m *mockMigrator) Force(v int) error { return m.Called(v).Error(0) }
func (m *mockMigrator) Close() error      { return m.Called().Error(0) }

func (m *mockMigrator) Version() (uint, bool, error) {
	args := m.Called()
	return args.Get(0).(uint), args.Bool(1), args.Error(2)
}

func (m *mockMigrator) Pending() ([]store.Migration, error) {
	args := m.Called()
	pending, _ := args.Get(0).([]store.Migration)
	return pending, args.Error(1)
}

const testDatabaseURL = "postgres://authview@localhost:5432/authview"

// migrateDeps returns deps whose factory hands out m after failing
// failures times with a retryable error.
func migrateDeps(m Migrator, failures int) (*MigrateDeps, *int) {
	calls := 0
	return &MigrateDeps{
		MigratorFactory: func(url string) (Migrator, error) {
			calls++
			if url != testDatabaseURL {
				return nil, errors.New("unexpected url " + url)
			}
			if calls <= failures {
				return nil, oops.Code("MIGRATION_INIT_FAILED").Errorf("connection refused")
			}
			return m, nil
		},
		ConnectBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
		},
	}, &calls
}

func runMigrate(t *testing.T, deps *MigrateDeps, args ...string) (string, error) {
	t.Helper()
	isolate(t)
	return execute(t, newRootCmd(nil, deps), nil, append([]string{"--database-url", testDatabaseURL, "migrate"}, args...)...)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	isolate(t)
	deps, calls := migrateDeps(&mockMigrator{}, 0)

	_, err := execute(t, newRootCmd(nil, deps), nil, "migrate", "up")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "store.database_url")
	assert.Zero(t, *calls)
}

func TestMigrate_Up(t *testing.T) {
	for _, args := range [][]string{{}, {"up"}} {
		m := &mockMigrator{}
		m.On("Up").Return(nil).Once()
		m.On("Close").Return(nil).Once()
		deps, _ := migrateDeps(m, 0)

		out, err := runMigrate(t, deps, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "Migrations completed successfully")
		m.AssertExpectations(t)
	}
}

func TestMigrate_UpFailureIsWrapped(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(errors.New("syntax error")).Once()
	m.On("Close").Return(nil).Once()
	deps, _ := migrateDeps(m, 0)

	_, err := runMigrate(t, deps, "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "up")
	m.AssertExpectations(t)
}

func TestMigrate_WaitsForDatabase(t *testing.T) {
	m := &mockMigrator{}
	m.On("Up").Return(nil).Once()
	m.On("Close").Return(nil).Once()
	deps, calls := migrateDeps(m, 2)

	_, err := runMigrate(t, deps, "up")
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
}

func TestMigrate_GivesUpWhenDatabaseNeverComesUp(t *testing.T) {
	deps, calls := migrateDeps(&mockMigrator{}, 100)

	_, err := runMigrate(t, deps, "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	errutil.AssertErrorContext(t, err, "operation", "connect to database")
	assert.Equal(t, 4, *calls)
}

func TestMigrate_NonRetryableFactoryError(t *testing.T) {
	calls := 0
	deps := &MigrateDeps{
		MigratorFactory: func(string) (Migrator, error) {
			calls++
			return nil, oops.Code("MIGRATION_SOURCE_FAILED").Errorf("bad embed")
		},
	}

	_, err := runMigrate(t, deps, "up")
	errutil.AssertErrorCode(t, err, "MIGRATION_SOURCE_FAILED")
	assert.Equal(t, 1, calls)
}

func TestMigrate_Down(t *testing.T) {
	m := &mockMigrator{}
	m.On("Down").Return(nil).Once()
	m.On("Close").Return(nil).Once()
	deps, _ := migrateDeps(m, 0)

	out, err := runMigrate(t, deps, "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rollback completed successfully")
	m.AssertExpectations(t)
}

func TestMigrate_Steps(t *testing.T) {
	t.Run("negative steps roll back", func(t *testing.T) {
		m := &mockMigrator{}
		m.On("Steps", -1).Return(nil).Once()
		m.On("Close").Return(nil).Once()
		deps, _ := migrateDeps(m, 0)

		out, err := runMigrate(t, deps, "steps", "--", "-1")
		require.NoError(t, err)
		assert.Contains(t, out, "Applied -1 step(s)")
		m.AssertExpectations(t)
	})

	for _, arg := range []string{"abc", "0"} {
		t.Run("rejects "+arg, func(t *testing.T) {
			deps, calls := migrateDeps(&mockMigrator{}, 0)
			_, err := runMigrate(t, deps, "steps", arg)
			errutil.AssertErrorCode(t, err, "MIGRATION_ARGS_INVALID")
			assert.Zero(t, *calls)
		})
	}
}

func TestMigrate_Version(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		want    string
	}{
		{"nothing applied", 0, false, "No migrations applied"},
		{"clean", 2, false, "Version 2\n"},
		{"dirty", 3, true, "Version 3 (dirty)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockMigrator{}
			m.On("Version").Return(tt.version, tt.dirty, nil).Once()
			m.On("Close").Return(nil).Once()
			deps, _ := migrateDeps(m, 0)

			out, err := runMigrate(t, deps, "version")
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestMigrate_Force(t *testing.T) {
	m := &mockMigrator{}
	m.On("Force", 2).Return(nil).Once()
	m.On("Close").Return(nil).Once()
	deps, _ := migrateDeps(m, 0)

	out, err := runMigrate(t, deps, "force", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Forced version 2")

	deps, calls := migrateDeps(&mockMigrator{}, 0)
	_, err = runMigrate(t, deps, "force", "two")
	errutil.AssertErrorCode(t, err, "MIGRATION_ARGS_INVALID")
	assert.Zero(t, *calls)
}

func TestMigrate_Pending(t *testing.T) {
	t.Run("lists pending", func(t *testing.T) {
		m := &mockMigrator{}
		m.On("Pending").Return([]store.Migration{
			{Version: 2, Name: "000002_owned_content"},
		}, nil).Once()
		m.On("Close").Return(nil).Once()
		deps, _ := migrateDeps(m, 0)

		out, err := runMigrate(t, deps, "pending")
		require.NoError(t, err)
		assert.Contains(t, out, "000002 000002_owned_content")
	})

	t.Run("up to date", func(t *testing.T) {
		m := &mockMigrator{}
		m.On("Pending").Return([]store.Migration(nil), nil).Once()
		m.On("Close").Return(nil).Once()
		deps, _ := migrateDeps(m, 0)

		out, err := runMigrate(t, deps, "pending")
		require.NoError(t, err)
		assert.Contains(t, out, "Schema is up to date")
	})
}
