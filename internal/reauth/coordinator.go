// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package reauth holds a sensitive operation while the user proves a fresh
// credential, then runs it.
//
// The coordinator is single-flight: one pending operation at a time. It
// moves Idle -> AwaitingProviderChoice -> AwaitingCredential -> Unlocked
// and back to Idle once the operation has run. Cancel abandons the pending
// operation from any waiting phase without running it.
package reauth

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/pkg/errutil"
)

// Phase is the coordinator state.
type Phase int

// Coordinator phases.
const (
	PhaseIdle Phase = iota
	PhaseAwaitingProviderChoice
	PhaseAwaitingCredential
	PhaseUnlocked
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingProviderChoice:
		return "awaiting_provider_choice"
	case PhaseAwaitingCredential:
		return "awaiting_credential"
	case PhaseUnlocked:
		return "unlocked"
	default:
		return "idle"
	}
}

// Operation is a sensitive action that may demand re-authentication.
type Operation func(ctx context.Context) error

// Gateway is the subset of auth.Gateway the coordinator needs.
type Gateway interface {
	LinkedProviders() []auth.ProviderType
	Reauthenticate(ctx context.Context, cred auth.Credential) error
}

// Snapshot describes the coordinator for presentation.
type Snapshot struct {
	Phase     Phase
	Operation string
	Providers []auth.ProviderType
	Provider  auth.ProviderType
	// LastErr is the most recent failed credential attempt.
	LastErr error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

type pending struct {
	name string
	op   Operation
}

// Coordinator runs the re-authentication state machine.
type Coordinator struct {
	gateway Gateway
	logger  *slog.Logger

	mu         sync.Mutex
	phase      Phase
	pending    *pending
	providers  []auth.ProviderType
	provider   auth.ProviderType
	lastErr    error
	submitting bool
	gen        uint64
	watchers   map[uint64]func(Snapshot)
	nextID     uint64
	seq        uint64

	// deliver orders watcher calls; delivered is the last seq handed out.
	deliver   sync.Mutex
	delivered uint64
}

// change is a snapshot stamped with the order it was taken in.
type change struct {
	snap Snapshot
	seq  uint64
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(gateway Gateway, opts ...Option) (*Coordinator, error) {
	if gateway == nil {
		return nil, oops.Code("REAUTH_COORDINATOR_INVALID").Errorf("auth gateway is required")
	}
	c := &Coordinator{
		gateway:  gateway,
		logger:   slog.Default(),
		watchers: make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes op. When op fails with a re-authentication demand the
// operation is parked and Run reports deferred=true with a nil error; the
// caller then drives ChooseProvider and Submit. Any other failure is
// returned unchanged.
func (c *Coordinator) Run(ctx context.Context, name string, op Operation) (deferred bool, err error) {
	err = op(ctx)
	if err == nil {
		return false, nil
	}
	if auth.KindOf(err) != auth.KindRequiresReauth {
		return false, err
	}
	if err := c.Request(name, op); err != nil {
		return false, err
	}
	return true, nil
}

// Request parks op and lists the identity's linked providers. It fails when
// another operation is already pending or no provider is linked.
func (c *Coordinator) Request(name string, op Operation) error {
	if op == nil {
		return oops.Code("REAUTH_INVALID_OPERATION").With("operation", name).Errorf("operation is required")
	}
	providers := c.gateway.LinkedProviders()

	c.mu.Lock()
	if c.phase != PhaseIdle {
		busy := c.pending.name
		c.mu.Unlock()
		return oops.Code("REAUTH_BUSY").
			With("operation", name).
			With("pending", busy).
			Errorf("another sensitive operation is awaiting re-authentication")
	}
	if len(providers) == 0 {
		c.mu.Unlock()
		return oops.Code("REAUTH_NO_PROVIDERS").
			With("operation", name).
			Errorf("no linked provider can re-authenticate")
	}
	c.gen++
	c.phase = PhaseAwaitingProviderChoice
	c.pending = &pending{name: name, op: op}
	c.providers = slices.Clone(providers)
	c.provider = ""
	c.lastErr = nil
	ev := c.changedLocked()
	c.mu.Unlock()

	c.logger.Info("re-authentication requested", "operation", name, "providers", len(providers))
	c.notify(ev)
	return nil
}

// ChooseProvider selects which linked provider the credential will be for.
// It may also switch providers while a credential is awaited.
func (c *Coordinator) ChooseProvider(p auth.ProviderType) error {
	c.mu.Lock()
	if c.phase != PhaseAwaitingProviderChoice && c.phase != PhaseAwaitingCredential {
		phase := c.phase
		c.mu.Unlock()
		return invalidPhase("choose_provider", phase)
	}
	if !slices.Contains(c.providers, p) {
		c.mu.Unlock()
		return oops.Code("REAUTH_PROVIDER_NOT_LINKED").
			With("provider", string(p)).
			Errorf("provider is not linked to this account")
	}
	c.phase = PhaseAwaitingCredential
	c.provider = p
	ev := c.changedLocked()
	c.mu.Unlock()

	c.notify(ev)
	return nil
}

// Submit answers the challenge. A rejected credential keeps the coordinator
// in AwaitingCredential with LastErr set so the user can retry. An accepted
// credential unlocks and runs the pending operation, whose error is
// returned; the coordinator is Idle afterwards either way.
func (c *Coordinator) Submit(ctx context.Context, cred auth.Credential) error {
	c.mu.Lock()
	if c.phase != PhaseAwaitingCredential {
		phase := c.phase
		c.mu.Unlock()
		return invalidPhase("submit", phase)
	}
	if c.submitting {
		c.mu.Unlock()
		return oops.Code("REAUTH_BUSY").Errorf("a credential is already being verified")
	}
	if cred.Provider == "" {
		cred.Provider = c.provider
	}
	if cred.Provider != c.provider {
		c.mu.Unlock()
		return oops.Code("REAUTH_PROVIDER_MISMATCH").
			With("chosen", string(c.provider)).
			With("submitted", string(cred.Provider)).
			Errorf("credential is for a different provider")
	}
	c.submitting = true
	gen := c.gen
	c.mu.Unlock()

	err := c.gateway.Reauthenticate(ctx, cred)

	c.mu.Lock()
	c.submitting = false
	if gen != c.gen {
		c.mu.Unlock()
		return oops.Code("REAUTH_CANCELLED").Errorf("re-authentication was cancelled")
	}
	if err != nil {
		c.lastErr = err
		ev := c.changedLocked()
		c.mu.Unlock()
		c.notify(ev)
		return err
	}
	c.phase = PhaseUnlocked
	p := c.pending
	ev := c.changedLocked()
	c.mu.Unlock()
	c.notify(ev)

	c.logger.InfoContext(ctx, "re-authenticated", "operation", p.name, "provider", string(cred.Provider))
	opErr := p.op(ctx)
	if opErr != nil {
		errutil.Log(ctx, c.logger, slog.LevelWarn, "unlocked operation failed", opErr)
	}

	c.mu.Lock()
	c.resetLocked()
	ev = c.changedLocked()
	c.mu.Unlock()
	c.notify(ev)
	return opErr
}

// Cancel abandons the pending operation without running it. It reports
// whether anything was abandoned; an Unlocked operation is already running
// and cannot be cancelled.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	if c.phase != PhaseAwaitingProviderChoice && c.phase != PhaseAwaitingCredential {
		c.mu.Unlock()
		return false
	}
	name := c.pending.name
	c.resetLocked()
	c.gen++
	ev := c.changedLocked()
	c.mu.Unlock()

	c.logger.Info("re-authentication cancelled", "operation", name)
	c.notify(ev)
	return true
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch registers fn to receive every state change. The returned func
// unregisters it.
func (c *Coordinator) Watch(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) resetLocked() {
	c.phase = PhaseIdle
	c.pending = nil
	c.providers = nil
	c.provider = ""
	c.lastErr = nil
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:     c.phase,
		Providers: slices.Clone(c.providers),
		Provider:  c.provider,
		LastErr:   c.lastErr,
	}
	if c.pending != nil {
		s.Operation = c.pending.name
	}
	return s
}

func (c *Coordinator) changedLocked() change {
	c.seq++
	return change{snap: c.snapshotLocked(), seq: c.seq}
}

// notify hands ev to the watchers unless a later change was already
// delivered, so a watcher's last view is always the newest state. Watchers
// must not call back into the coordinator's mutating methods.
func (c *Coordinator) notify(ev change) {
	c.deliver.Lock()
	defer c.deliver.Unlock()
	if ev.seq <= c.delivered {
		return
	}
	c.delivered = ev.seq

	c.mu.Lock()
	watchers := make([]func(Snapshot), 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()
	for _, w := range watchers {
		w(ev.snap)
	}
}

func invalidPhase(action string, phase Phase) error {
	return oops.Code("REAUTH_INVALID_PHASE").
		With("action", action).
		With("phase", phase.String()).
		Errorf("%s is not allowed while %s", action, phase)
}
