// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/authview/authview/pkg/errutil"
)

// ErrorKind classifies authentication failures. Values double as oops codes.
type ErrorKind string

// Error kinds.
const (
	KindInvalidEmail      ErrorKind = "AUTH_INVALID_EMAIL"
	KindWrongPassword     ErrorKind = "AUTH_WRONG_PASSWORD"
	KindUserNotFound      ErrorKind = "AUTH_USER_NOT_FOUND"
	KindEmailAlreadyInUse ErrorKind = "AUTH_EMAIL_IN_USE"
	KindWeakPassword      ErrorKind = "AUTH_WEAK_PASSWORD"
	KindRequiresReauth    ErrorKind = "AUTH_REQUIRES_REAUTH"
	KindNetwork           ErrorKind = "AUTH_NETWORK"
	KindUnknown           ErrorKind = "AUTH_UNKNOWN"
)

var kindText = map[ErrorKind]string{
	KindInvalidEmail:      "The email address is badly formatted.",
	KindWrongPassword:     "The password is incorrect.",
	KindUserNotFound:      "No account exists for this email address.",
	KindEmailAlreadyInUse: "This email address is already in use.",
	KindWeakPassword:      "The password is too weak.",
	KindRequiresReauth:    "Please sign in again to continue.",
	KindNetwork:           "A network error occurred. Try again.",
	KindUnknown:           "Something went wrong.",
}

// Description returns a user-facing sentence for the kind.
func (k ErrorKind) Description() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return kindText[KindUnknown]
}

// Raw provider codes.
const (
	CodeInvalidEmail        = "invalid-email"
	CodeWrongPassword       = "wrong-password"
	CodeUserNotFound        = "user-not-found"
	CodeEmailAlreadyInUse   = "email-already-in-use"
	CodeAccountExists       = "account-exists-with-different-credential"
	CodeWeakPassword        = "weak-password"
	CodeRequiresRecentLogin = "requires-recent-login"
	CodeNetworkRequest      = "network-request-failed"
	CodeTooManyRequests     = "too-many-requests"
	CodeNoCurrentUser       = "no-current-user"
	CodeProviderNotLinked   = "provider-not-linked"
	CodeInvalidCredential   = "invalid-credential"
	CodeInternal            = "internal-error"
)

// ProviderError is the raw failure reported by an identity provider.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return "auth/" + e.Code
	}
	return fmt.Sprintf("auth/%s: %s", e.Code, e.Message)
}

// NewProviderError is a convenience constructor for provider implementations.
func NewProviderError(code, format string, args ...any) *ProviderError {
	return &ProviderError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var classification = map[string]ErrorKind{
	CodeInvalidEmail:        KindInvalidEmail,
	CodeWrongPassword:       KindWrongPassword,
	CodeUserNotFound:        KindUserNotFound,
	CodeEmailAlreadyInUse:   KindEmailAlreadyInUse,
	CodeAccountExists:       KindEmailAlreadyInUse,
	CodeWeakPassword:        KindWeakPassword,
	CodeRequiresRecentLogin: KindRequiresReauth,
	CodeNetworkRequest:      KindNetwork,
}

// ClassifyCode maps a raw provider code. Unknown codes map to KindUnknown.
func ClassifyCode(code string) ErrorKind {
	if kind, ok := classification[code]; ok {
		return kind
	}
	return KindUnknown
}

// Classify maps any provider failure onto the taxonomy.
func Classify(err error) ErrorKind {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return ClassifyCode(pe.Code)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// KindOf returns the kind carried by a Gateway error, "" for nil and
// KindUnknown for anything unclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	kind := ErrorKind(errutil.Code(err))
	if _, ok := kindText[kind]; ok {
		return kind
	}
	return KindUnknown
}

// classify wraps a raw provider failure with its taxonomy code. oops
// reports the innermost code, so an already-coded cause is flattened to
// keep the taxonomy code authoritative.
func classify(operation string, err error) error {
	kind := Classify(err)
	builder := oops.Code(string(kind)).With("operation", operation)

	var pe *ProviderError
	if errors.As(err, &pe) {
		builder = builder.With("provider_code", pe.Code)
	}
	if inner := errutil.Code(err); inner != "" {
		return builder.With("cause_code", inner).Errorf("%s: %s", operation, err.Error())
	}
	return builder.Wrapf(err, "%s", operation)
}
