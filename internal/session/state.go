// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package session

import (
	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/profile"
)

// Status is the tri-state session signal.
type Status int

// Session statuses. StatusUnknown holds until the provider first reports.
const (
	StatusUnknown Status = iota
	StatusSignedOut
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusSignedOut:
		return "signed_out"
	case StatusSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// State is what subscribers observe. Identity is set only when signed in;
// Profile is set once the matching record has loaded.
type State struct {
	Status   Status
	Identity *auth.Identity
	Profile  *profile.Record
}

// UID returns the signed-in uid or "".
func (s State) UID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.UID
}

func sameIdentity(a, b *auth.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneIdentity(id *auth.Identity) *auth.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
