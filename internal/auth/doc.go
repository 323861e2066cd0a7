// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package auth is the client-side facade over an external identity provider.
//
// # Provider contract
//
// IdentityProvider is consumed, never implemented, here. Implementations
// report failures as *ProviderError values whose Code is one of the raw
// Code* constants; anything else is classified as KindUnknown.
//
// # Errors
//
// Every Gateway failure is an oops error whose code is an ErrorKind.
// Use KindOf to recover it:
//
//	if auth.KindOf(err) == auth.KindRequiresReauth { ... }
//
// # Partial outcomes
//
// CreateUser and DeleteAccount span two systems. When the identity step
// succeeds but the document step fails, they return a nil error together
// with a pending outcome (AccountCreatedProfilePending,
// AccountDeletedDataPending) and the store error. Nothing is rolled back.
package auth
