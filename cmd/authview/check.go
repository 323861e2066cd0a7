// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authview/authview/internal/validation"
)

// NewCheckCmd creates the check command group, which runs the credential
// validators without touching the identity provider.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate credential input",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "email ADDRESS",
		Short: "Check an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := validation.ValidateEmail(args[0])
			if !res.Valid {
				msg := res.Message
				if msg == "" {
					msg = validation.MsgInvalidEmail
				}
				return oops.Code("CHECK_INVALID").With("field", "email").Errorf("%s", msg)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	})

	password := &cobra.Command{
		Use:   "password PASSWORD",
		Short: "Check a password against the configured policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if res := cfg.Password.Check(args[0]); !res.Valid {
				return oops.Code("CHECK_INVALID").With("field", "password").Errorf("%s", res.Message)
			}
			if cmd.Flags().Changed("confirm") {
				confirm, _ := cmd.Flags().GetString("confirm")
				if res := validation.ConfirmPassword(args[0], confirm); !res.Valid {
					return oops.Code("CHECK_INVALID").With("field", "confirm_password").
						Errorf("%s", validation.MsgPasswordsMismatch)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}
	password.Flags().String("confirm", "", "confirmation to compare against")
	cmd.AddCommand(password)

	return cmd
}
