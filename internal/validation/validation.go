// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package validation derives field-level validity for credential input.
//
// Everything here is a pure function of its arguments.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/samber/oops"
)

// MinPasswordLength is the floor for any configured password policy.
const MinPasswordLength = 6

// User-facing messages.
const (
	MsgInvalidEmail      = "Enter a valid email address"
	MsgEmptyPassword     = "Password is required"
	MsgPasswordsMismatch = "Passwords do not match"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// Result is the validity of one field plus the message to show for it.
// Message is empty whenever Valid is true.
type Result struct {
	Valid   bool
	Message string
}

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Message: msg} }

// IsEmailValid reports whether s has the local@domain.tld shape.
func IsEmailValid(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidateEmail returns the email field result. An untouched (empty) field
// is invalid but carries no message.
func ValidateEmail(s string) Result {
	switch {
	case s == "":
		return Result{}
	case IsEmailValid(s):
		return ok()
	default:
		return fail(MsgInvalidEmail)
	}
}

// PasswordPolicy describes what a password must contain.
type PasswordPolicy struct {
	MinLength     int  `json:"min_length" yaml:"min_length" koanf:"min_length" jsonschema:"minimum=6,default=6"`
	RequireUpper  bool `json:"require_upper" yaml:"require_upper" koanf:"require_upper"`
	RequireLower  bool `json:"require_lower" yaml:"require_lower" koanf:"require_lower"`
	RequireDigit  bool `json:"require_digit" yaml:"require_digit" koanf:"require_digit"`
	RequireSymbol bool `json:"require_symbol" yaml:"require_symbol" koanf:"require_symbol"`
}

// DefaultPasswordPolicy is length-only with the minimum floor.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: MinPasswordLength}
}

// Validate rejects policies weaker than the floor.
func (p PasswordPolicy) Validate() error {
	if p.MinLength < MinPasswordLength {
		return oops.Code("PASSWORD_POLICY_INVALID").
			With("min_length", p.MinLength).
			Errorf("min_length must be at least %d", MinPasswordLength)
	}
	return nil
}

// Check evaluates s against the policy. The empty string is always
// rejected. The first unmet requirement supplies the message.
func (p PasswordPolicy) Check(s string) Result {
	if s == "" {
		return fail(MsgEmptyPassword)
	}
	minLen := max(p.MinLength, MinPasswordLength)
	if len([]rune(s)) < minLen {
		return fail(fmt.Sprintf("Password must be at least %d characters", minLen))
	}

	var upper, lower, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var missing []string
	if p.RequireUpper && !upper {
		missing = append(missing, "an uppercase letter")
	}
	if p.RequireLower && !lower {
		missing = append(missing, "a lowercase letter")
	}
	if p.RequireDigit && !digit {
		missing = append(missing, "a digit")
	}
	if p.RequireSymbol && !symbol {
		missing = append(missing, "a symbol")
	}
	if len(missing) > 0 {
		return fail("Password must contain " + strings.Join(missing, ", "))
	}
	return ok()
}

// PasswordsMatch is true iff both values are non-empty and equal.
func PasswordsMatch(password, confirm string) bool {
	return password != "" && confirm != "" && password == confirm
}

// ConfirmPassword returns the confirmation field result. An empty confirm
// field is "not yet comparable": invalid, but without a mismatch message.
func ConfirmPassword(password, confirm string) Result {
	if confirm == "" {
		return Result{}
	}
	if PasswordsMatch(password, confirm) {
		return ok()
	}
	return fail(MsgPasswordsMismatch)
}
