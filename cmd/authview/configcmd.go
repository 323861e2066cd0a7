// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/authview/authview/internal/config"
	"github.com/authview/authview/internal/xdg"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after defaults, the config file, flags and
environment have been applied. Credentials in URLs are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := configPath(cmd)
			if path == "" {
				return oops.Code("CONFIG_PATH_UNKNOWN").Errorf("no config path: set --config, XDG_CONFIG_HOME or HOME")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	})
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Write the built-in defaults to the config file path, creating its
directory. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Store.DatabaseURL = redactURL(cfg.Store.DatabaseURL)
	cfg.Store.RedisURL = redactURL(cfg.Store.RedisURL)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := configPath(cmd)
	if path == "" {
		return oops.Code("CONFIG_PATH_UNKNOWN").Errorf("no config path: set --config, XDG_CONFIG_HOME or HOME")
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("%s already exists (use --force to overwrite)", path)
	}

	out, err := yaml.Marshal(config.Default())
	if err != nil {
		return oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}

// redactURL masks the password of a connection URL. Unparseable values are
// hidden entirely.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<redacted>"
	}
	return u.Redacted()
}
