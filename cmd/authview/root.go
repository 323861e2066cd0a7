// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/authview/authview/internal/config"
	"github.com/authview/authview/internal/logging"
	"github.com/authview/authview/internal/xdg"
)

const serviceName = "authview"

// NewRootCmd creates the root command for the authview CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil, nil)
}

func newRootCmd(shellDeps *ShellDeps, migrateDeps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authview",
		Short: "AuthView - account and session management",
		Long: `AuthView signs users up and in, keeps their profile records in a
document store, and guards sensitive account operations behind
re-authentication.`,
		SilenceUsage: true,
	}

	defaults := config.Default()
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file path (default $XDG_CONFIG_HOME/authview/config.yaml)")
	flags.String("log-format", defaults.Log.Format, "log format (text or json)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("store", defaults.Store.Backend, "document store backend (memory, postgres, redis)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("redis-url", "", "Redis connection URL")
	flags.String("metrics-addr", "", "metrics and health listen address (empty disables)")

	cmd.AddCommand(NewShellCmd(shellDeps))
	cmd.AddCommand(NewMigrateCmd(migrateDeps))
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewCheckCmd())

	return cmd
}

// configPath returns the --config value or the XDG default. The default
// may be missing.
func configPath(cmd *cobra.Command) (path string, optional bool) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, false
	}
	p, err := xdg.ConfigFile()
	if err != nil {
		return "", true
	}
	return p, true
}

// loadConfig resolves configuration for cmd and installs the default
// logger from it.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, optional := configPath(cmd)
	cfg, err := config.Load(config.LoadOptions{
		Path:     path,
		Optional: optional,
		Flags:    cmd.Flags(),
	})
	if err != nil {
		return config.Config{}, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return cfg, logger, nil
}
