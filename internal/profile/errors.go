// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package profile

import (
	"context"
	"errors"

	"github.com/authview/authview/pkg/errutil"
)

// ErrorKind classifies store failures. Values double as oops codes.
type ErrorKind string

// Error kinds.
const (
	KindNotFound        ErrorKind = "STORE_NOT_FOUND"
	KindPartialDeletion ErrorKind = "STORE_PARTIAL_DELETION"
	KindNetwork         ErrorKind = "STORE_NETWORK"
	KindUnknown         ErrorKind = "STORE_UNKNOWN"
)

// Classify maps an adapter error onto the taxonomy.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// KindOf returns the kind carried by a Gateway error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	switch kind := ErrorKind(errutil.Code(err)); kind {
	case KindNotFound, KindPartialDeletion, KindNetwork, KindUnknown:
		return kind
	default:
		return KindUnknown
	}
}
