// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package auth

import "context"

// Identity is the authenticated principal as reported by the provider.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// ProviderType names a sign-in method linked to an identity.
type ProviderType string

// Known provider types.
const (
	ProviderPassword ProviderType = "password"
	ProviderApple    ProviderType = "apple.com"
	ProviderGoogle   ProviderType = "google.com"
)

// Credential is a challenge answer for one provider. Password credentials
// use Email and Password; federated ones carry a signed IDToken.
type Credential struct {
	Provider ProviderType
	Email    string
	Password string
	IDToken  string
}

// PasswordCredential builds an email/password credential.
func PasswordCredential(email, password string) Credential {
	return Credential{Provider: ProviderPassword, Email: email, Password: password}
}

// IdentityProvider is the external identity service.
type IdentityProvider interface {
	Authenticate(ctx context.Context, cred Credential) (*Identity, error)
	CreateUser(ctx context.Context, email, password, displayName string) (*Identity, error)
	SendPasswordReset(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	DeleteCurrentUser(ctx context.Context) error
	Reauthenticate(ctx context.Context, cred Credential) error
	SignOut(ctx context.Context) error

	// CurrentUser returns nil when signed out.
	CurrentUser() *Identity
	// LinkedProviders lists the current user's providers, empty when signed out.
	LinkedProviders() []ProviderType

	// OnSessionChange registers fn for sign-in state changes. fn receives
	// nil on sign-out. The returned func unregisters it.
	OnSessionChange(fn func(*Identity)) (cancel func())
}

// Profiles is the slice of the profile store the gateway drives.
type Profiles interface {
	CreateProfile(ctx context.Context, uid, name string) error
	DeleteProfileAndOwnedData(ctx context.Context, uid string) error
}
