// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package idp is an in-process identity provider. It keeps accounts in
// memory, hashes passwords with argon2id, issues HS256 session tokens and
// accepts apple.com and google.com ID tokens signed with the same key.
//
// Failures are reported as *auth.ProviderError carrying the raw provider
// code; classification is left to the auth gateway.
package idp

import (
	"context"
	"crypto/rand"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/validation"
	"github.com/authview/authview/pkg/errutil"
)

// Defaults.
const (
	DefaultRecentLoginWindow = 5 * time.Minute
	DefaultSessionTTL        = 30 * 24 * time.Hour
	DefaultResetCodeTTL      = time.Hour
	federatedTokenTTL        = 10 * time.Minute
)

type account struct {
	uid          string
	email        string
	displayName  string
	passwordHash string
	providers    []auth.ProviderType
	subjects     map[auth.ProviderType]string
	attempts     attempts
}

func (a *account) identity() *auth.Identity {
	return &auth.Identity{UID: a.uid, Email: a.email, DisplayName: a.displayName}
}

func (a *account) link(p auth.ProviderType) {
	if !slices.Contains(a.providers, p) {
		a.providers = append(a.providers, p)
	}
}

type resetCode struct {
	uid     string
	expires time.Time
}

type federatedKey struct {
	provider auth.ProviderType
	subject  string
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithPasswordPolicy sets the policy new passwords must satisfy.
func WithPasswordPolicy(policy validation.PasswordPolicy) Option {
	return func(p *Provider) { p.policy = policy }
}

// WithLockout sets the failed-attempt lockout policy.
func WithLockout(l Lockout) Option {
	return func(p *Provider) { p.lockout = l }
}

// WithRecentLoginWindow sets how long after presenting a credential a
// sensitive operation is allowed without re-authentication.
func WithRecentLoginWindow(d time.Duration) Option {
	return func(p *Provider) { p.recentLogin = d }
}

// WithHashParams sets the argon2id cost parameters.
func WithHashParams(params HashParams) Option {
	return func(p *Provider) { p.hasher = NewHasher(params) }
}

// WithMailer sets the reset-code delivery.
func WithMailer(m Mailer) Option {
	return func(p *Provider) { p.mailer = m }
}

// WithSigningKey sets the HS256 key. By default a random key is generated.
func WithSigningKey(key []byte) Option {
	return func(p *Provider) { p.key = key }
}

// Provider implements auth.IdentityProvider. It is safe for concurrent use.
type Provider struct {
	hasher      *Hasher
	policy      validation.PasswordPolicy
	lockout     Lockout
	recentLogin time.Duration
	mailer      Mailer
	logger      *slog.Logger
	now         func() time.Time
	key         []byte
	tokens      signer

	mu        sync.Mutex
	accounts  map[string]*account
	byEmail   map[string]string
	federated map[federatedKey]string
	resets    map[string]resetCode
	session   string
	listeners map[uint64]func(*auth.Identity)
	nextID    uint64

	// deliver serialises listener calls so they observe session changes in
	// the order they happened.
	deliver sync.Mutex
}

var _ auth.IdentityProvider = (*Provider)(nil)

// New creates an empty Provider.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		hasher:      NewHasher(DefaultHashParams()),
		policy:      validation.DefaultPasswordPolicy(),
		lockout:     DefaultLockout(),
		recentLogin: DefaultRecentLoginWindow,
		logger:      slog.Default(),
		now:         time.Now,
		accounts:    make(map[string]*account),
		byEmail:     make(map[string]string),
		federated:   make(map[federatedKey]string),
		resets:      make(map[string]resetCode),
		listeners:   make(map[uint64]func(*auth.Identity)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mailer == nil {
		p.mailer = LogMailer{Logger: p.logger}
	}
	if len(p.key) == 0 {
		p.key = make([]byte, 32)
		if _, err := rand.Read(p.key); err != nil {
			return nil, oops.Code("IDP_KEY_FAILED").Wrap(err)
		}
	}
	if err := p.policy.Validate(); err != nil {
		return nil, err
	}
	p.tokens = signer{key: p.key, now: p.now}
	return p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func internal(err error) error {
	return auth.NewProviderError(auth.CodeInternal, "%s", err.Error())
}

// Authenticate signs in with a password or federated credential.
func (p *Provider) Authenticate(ctx context.Context, cred auth.Credential) (*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch cred.Provider {
	case auth.ProviderPassword:
		return p.authenticatePassword(ctx, cred)
	case auth.ProviderApple, auth.ProviderGoogle:
		return p.authenticateFederated(ctx, cred)
	default:
		return nil, auth.NewProviderError(auth.CodeInvalidCredential, "unsupported provider %q", cred.Provider)
	}
}

func (p *Provider) authenticatePassword(ctx context.Context, cred auth.Credential) (*auth.Identity, error) {
	if !validation.IsEmailValid(cred.Email) {
		return nil, auth.NewProviderError(auth.CodeInvalidEmail, "badly formatted email")
	}

	p.mu.Lock()
	acct, err := p.checkPasswordLocked(normalizeEmail(cred.Email), cred.Password)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	id, err := p.startSessionLocked(acct)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.logger.DebugContext(ctx, "password sign-in", "uid", id.UID)
	p.notify()
	return id, nil
}

// checkPasswordLocked verifies a password against the lockout policy and
// records the outcome.
func (p *Provider) checkPasswordLocked(email, password string) (*account, error) {
	uid, ok := p.byEmail[email]
	if !ok {
		return nil, auth.NewProviderError(auth.CodeUserNotFound, "no account for this email")
	}
	acct := p.accounts[uid]
	now := p.now()
	if left := p.lockout.remaining(acct.attempts, now); left > 0 {
		return nil, auth.NewProviderError(auth.CodeTooManyRequests,
			"account locked for %s", left.Round(time.Second))
	}
	if acct.passwordHash == "" {
		return nil, auth.NewProviderError(auth.CodeWrongPassword, "account has no password")
	}
	match, err := p.hasher.Verify(password, acct.passwordHash)
	if err != nil {
		return nil, internal(err)
	}
	if !match {
		acct.attempts = p.lockout.fail(acct.attempts, now)
		return nil, auth.NewProviderError(auth.CodeWrongPassword, "password is incorrect")
	}
	acct.attempts = attempts{}
	return acct, nil
}

func (p *Provider) authenticateFederated(ctx context.Context, cred auth.Credential) (*auth.Identity, error) {
	claims, err := p.tokens.parseFederated(cred.Provider, cred.IDToken)
	if err != nil {
		return nil, auth.NewProviderError(auth.CodeInvalidCredential, "%s token rejected: %v", cred.Provider, err)
	}

	p.mu.Lock()
	key := federatedKey{provider: cred.Provider, subject: claims.Subject}
	acct := p.accounts[p.federated[key]]
	if acct == nil {
		email := normalizeEmail(claims.Email)
		if uid, ok := p.byEmail[email]; ok && email != "" {
			// Linking onto an existing account needs that account's own
			// session; the token only proves control of the subject.
			if current, _ := p.currentLocked(); current == nil || current.uid != uid {
				p.mu.Unlock()
				return nil, auth.NewProviderError(auth.CodeAccountExists,
					"sign in to the existing account before linking %s", cred.Provider)
			}
			acct = p.accounts[uid]
		} else {
			acct = p.newAccountLocked(email, "")
		}
		acct.link(cred.Provider)
		acct.subjects[cred.Provider] = claims.Subject
		p.federated[key] = acct.uid
	}
	id, err := p.startSessionLocked(acct)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.logger.DebugContext(ctx, "federated sign-in", "uid", id.UID, "provider", string(cred.Provider))
	p.notify()
	return id, nil
}

func (p *Provider) newAccountLocked(email, displayName string) *account {
	acct := &account{
		uid:         ulid.Make().String(),
		email:       email,
		displayName: displayName,
		subjects:    make(map[auth.ProviderType]string),
	}
	p.accounts[acct.uid] = acct
	if email != "" {
		p.byEmail[email] = acct.uid
	}
	return acct
}

func (p *Provider) startSessionLocked(acct *account) (*auth.Identity, error) {
	token, err := p.tokens.issueSession(acct.uid, p.now(), DefaultSessionTTL)
	if err != nil {
		return nil, internal(err)
	}
	p.session = token
	return acct.identity(), nil
}

// currentLocked returns the signed-in account and its claims.
func (p *Provider) currentLocked() (*account, *sessionClaims) {
	if p.session == "" {
		return nil, nil
	}
	claims, err := p.tokens.parseSession(p.session)
	if err != nil {
		return nil, nil
	}
	acct := p.accounts[claims.Subject]
	if acct == nil {
		return nil, nil
	}
	return acct, claims
}

// recentLocked returns the signed-in account when its last credential is
// inside the recent-login window.
func (p *Provider) recentLocked() (*account, error) {
	acct, claims := p.currentLocked()
	if acct == nil {
		return nil, auth.NewProviderError(auth.CodeNoCurrentUser, "no signed-in user")
	}
	if p.now().Sub(time.Unix(claims.AuthTime, 0)) > p.recentLogin {
		return nil, auth.NewProviderError(auth.CodeRequiresRecentLogin, "credential is older than %s", p.recentLogin)
	}
	return acct, nil
}

// CreateUser registers an email/password account and signs it in.
func (p *Provider) CreateUser(ctx context.Context, email, password, displayName string) (*auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validation.IsEmailValid(email) {
		return nil, auth.NewProviderError(auth.CodeInvalidEmail, "badly formatted email")
	}
	if res := p.policy.Check(password); !res.Valid {
		return nil, auth.NewProviderError(auth.CodeWeakPassword, "%s", res.Message)
	}
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, internal(err)
	}

	p.mu.Lock()
	email = normalizeEmail(email)
	if _, taken := p.byEmail[email]; taken {
		p.mu.Unlock()
		return nil, auth.NewProviderError(auth.CodeEmailAlreadyInUse, "email already registered")
	}
	acct := p.newAccountLocked(email, strings.TrimSpace(displayName))
	acct.passwordHash = hash
	acct.link(auth.ProviderPassword)
	id, err := p.startSessionLocked(acct)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "account created", "uid", id.UID)
	p.notify()
	return id, nil
}

// SendPasswordReset issues a reset code. Unregistered addresses succeed
// silently.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validation.IsEmailValid(email) {
		return auth.NewProviderError(auth.CodeInvalidEmail, "badly formatted email")
	}
	email = normalizeEmail(email)

	p.mu.Lock()
	uid, ok := p.byEmail[email]
	if !ok {
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}
	code := uuid.NewString()
	p.resets[code] = resetCode{uid: uid, expires: p.now().Add(DefaultResetCodeTTL)}
	p.mu.Unlock()

	if err := p.mailer.SendPasswordReset(ctx, email, code); err != nil {
		errutil.LogError(p.logger, "reset delivery failed", err)
		return auth.NewProviderError(auth.CodeNetworkRequest, "reset delivery failed")
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a code from
// SendPasswordReset. Codes are single use. The reset also lifts any
// lockout and links the password provider.
func (p *Provider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res := p.policy.Check(newPassword); !res.Valid {
		return auth.NewProviderError(auth.CodeWeakPassword, "%s", res.Message)
	}
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return internal(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rc, ok := p.resets[code]
	if !ok || !rc.expires.After(p.now()) {
		delete(p.resets, code)
		return auth.NewProviderError(auth.CodeInvalidCredential, "reset code is invalid or expired")
	}
	delete(p.resets, code)
	acct := p.accounts[rc.uid]
	if acct == nil {
		return auth.NewProviderError(auth.CodeUserNotFound, "account no longer exists")
	}
	acct.passwordHash = hash
	acct.attempts = attempts{}
	acct.link(auth.ProviderPassword)
	p.logger.InfoContext(ctx, "password reset", "uid", acct.uid)
	return nil
}

// UpdatePassword replaces the signed-in user's password. It requires a
// recent login.
func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, err := p.recentLocked()
	if err != nil {
		return err
	}
	if res := p.policy.Check(newPassword); !res.Valid {
		return auth.NewProviderError(auth.CodeWeakPassword, "%s", res.Message)
	}
	hash, err := p.hasher.Hash(newPassword)
	if err != nil {
		return internal(err)
	}
	acct.passwordHash = hash
	acct.link(auth.ProviderPassword)
	return nil
}

// DeleteCurrentUser removes the signed-in account and signs out. It
// requires a recent login.
func (p *Provider) DeleteCurrentUser(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	acct, err := p.recentLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	delete(p.accounts, acct.uid)
	if acct.email != "" {
		delete(p.byEmail, acct.email)
	}
	for prov, sub := range acct.subjects {
		delete(p.federated, federatedKey{provider: prov, subject: sub})
	}
	for code, rc := range p.resets {
		if rc.uid == acct.uid {
			delete(p.resets, code)
		}
	}
	p.session = ""
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "account deleted", "uid", acct.uid)
	p.notify()
	return nil
}

// Reauthenticate refreshes the signed-in session's auth time after
// checking a credential for one of its linked providers.
func (p *Provider) Reauthenticate(ctx context.Context, cred auth.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, _ := p.currentLocked()
	if acct == nil {
		return auth.NewProviderError(auth.CodeNoCurrentUser, "no signed-in user")
	}
	if !slices.Contains(acct.providers, cred.Provider) {
		return auth.NewProviderError(auth.CodeProviderNotLinked, "%s is not linked", cred.Provider)
	}

	switch cred.Provider {
	case auth.ProviderPassword:
		if normalizeEmail(cred.Email) != acct.email {
			return auth.NewProviderError(auth.CodeInvalidCredential, "credential is for a different user")
		}
		if _, err := p.checkPasswordLocked(acct.email, cred.Password); err != nil {
			return err
		}
	default:
		claims, err := p.tokens.parseFederated(cred.Provider, cred.IDToken)
		if err != nil {
			return auth.NewProviderError(auth.CodeInvalidCredential, "%s token rejected: %v", cred.Provider, err)
		}
		if claims.Subject != acct.subjects[cred.Provider] {
			return auth.NewProviderError(auth.CodeInvalidCredential, "credential is for a different user")
		}
	}

	_, err := p.startSessionLocked(acct)
	return err
}

// SignOut ends the session. Signing out while signed out is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	was := p.session != ""
	p.session = ""
	p.mu.Unlock()
	if was {
		p.notify()
	}
	return nil
}

// CurrentUser returns the signed-in identity or nil.
func (p *Provider) CurrentUser() *auth.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentIdentityLocked()
}

// LinkedProviders lists the signed-in account's providers.
func (p *Provider) LinkedProviders() []auth.ProviderType {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acct, _ := p.currentLocked(); acct != nil {
		return slices.Clone(acct.providers)
	}
	return nil
}

// SessionToken returns the signed session token, "" when signed out.
func (p *Provider) SessionToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// IssueFederatedToken mints an ID token as the named federated provider
// would. It stands in for the provider's own sign-in flow.
func (p *Provider) IssueFederatedToken(provider auth.ProviderType, subject, email string) (string, error) {
	if provider != auth.ProviderApple && provider != auth.ProviderGoogle {
		return "", oops.Code("IDP_PROVIDER_UNSUPPORTED").With("provider", string(provider)).
			Errorf("not a federated provider")
	}
	return p.tokens.issueFederated(provider, subject, email, federatedTokenTTL)
}

// OnSessionChange registers fn and immediately calls it with the current
// identity (nil when signed out). Later calls follow every sign-in,
// sign-out and deletion and carry the session as it stands when the call
// is made, one at a time. Callbacks run outside the provider lock but must
// not sign in or out themselves.
func (p *Provider) OnSessionChange(fn func(*auth.Identity)) (cancel func()) {
	p.deliver.Lock()
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	current := p.currentIdentityLocked()
	p.mu.Unlock()

	fn(current)
	p.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) currentIdentityLocked() *auth.Identity {
	if acct, _ := p.currentLocked(); acct != nil {
		return acct.identity()
	}
	return nil
}

// notify reports the current session to every listener. Reading the
// session under the delivery lock means the last call any listener sees
// reflects the newest change, even when changes race.
func (p *Provider) notify() {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	current := p.currentIdentityLocked()
	listeners := make([]func(*auth.Identity), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		if current == nil {
			fn(nil)
			continue
		}
		c := *current
		fn(&c)
	}
}
