// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authview/authview/pkg/errutil"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() (string, error)
		envVar  string
		custom  string
		fromEnv string
		home    string
	}{
		{"config", ConfigDir, "XDG_CONFIG_HOME", "/custom/config", "/custom/config/authview", "/home/u/.config/authview"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" from env", func(t *testing.T) {
			t.Setenv(tt.envVar, tt.custom)
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.fromEnv, got)
		})
		t.Run(tt.name+" from home", func(t *testing.T) {
			t.Setenv(tt.envVar, "")
			t.Setenv("HOME", "/home/u")
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.home, got)
		})
		t.Run(tt.name+" without home", func(t *testing.T) {
			t.Setenv(tt.envVar, "")
			t.Setenv("HOME", "")
			_, err := tt.fn()
			errutil.AssertErrorCode(t, err, "XDG_NO_HOME")
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg")
	got, err := ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "/etc/xdg/authview/config.yaml", got)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	require.NoError(t, EnsureDir(dir), "existing directory is fine")
}
