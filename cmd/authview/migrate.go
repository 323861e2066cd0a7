// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"context"
	"strconv"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/authview/authview/internal/config"
	"github.com/authview/authview/pkg/errutil"
)

// NewMigrateCmd creates the migrate command group. A nil deps uses the
// defaults.
func NewMigrateCmd(deps *MigrateDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL profile schema",
		Long: `Apply, roll back or inspect the embedded profile and content schema.
Without a subcommand all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, migrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, migrateUp)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				cmd.Println("Rolling back all migrations...")
				if err := m.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return oops.Code("MIGRATION_ARGS_INVALID").With("steps", args[0]).
					Errorf("steps must be a non-zero integer")
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Steps(n); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "steps").With("steps", n).Wrap(err)
				}
				cmd.Printf("Applied %d step(s)\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				switch {
				case v == 0:
					cmd.Println("No migrations applied")
				case dirty:
					cmd.Printf("Version %d (dirty)\n", v)
				default:
					cmd.Printf("Version %d\n", v)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Mark VERSION as applied and clear the dirty flag. Use after fixing a failed migration by hand.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < -1 {
				return oops.Code("MIGRATION_ARGS_INVALID").With("version", args[0]).
					Errorf("version must be an integer >= -1")
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", v)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List migrations not yet applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				pending, err := m.Pending()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Schema is up to date")
					return nil
				}
				for _, mg := range pending {
					cmd.Printf("%06d %s\n", mg.Version, mg.Name)
				}
				return nil
			})
		},
	})

	return cmd
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// withMigrator connects to the configured database, waiting for it to
// accept connections, and runs fn.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(*cobra.Command, Migrator) error) error {
	d := deps.withDefaults()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "store.database_url").
			Errorf("a database URL is required (--database-url or %sDATABASE_URL)", config.EnvPrefix)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.Println("Connecting to database...")
	m, err := retry.DoValue(ctx, d.ConnectBackoff(), func(_ context.Context) (Migrator, error) {
		m, err := d.MigratorFactory(cfg.Store.DatabaseURL)
		if err != nil {
			if errutil.Code(err) == "MIGRATION_INIT_FAILED" {
				logger.Debug("database not ready", "error", err)
				return nil, retry.RetryableError(err)
			}
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			errutil.LogError(logger, "closing migrator", cerr)
		}
	}()

	return fn(cmd, m)
}
