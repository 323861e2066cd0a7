// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package session tracks the signed-in identity for the whole process and
// fans its state out to subscribers.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/logging"
	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/pkg/errutil"
)

// Source pushes identity changes; nil means signed out.
type Source interface {
	OnSessionChange(fn func(*auth.Identity)) (cancel func())
}

// ProfileLoader fetches the record for a uid.
type ProfileLoader interface {
	Get(ctx context.Context, uid string) (*profile.Record, error)
}

// Recorder observes transitions and profile load failures.
type Recorder interface {
	RecordSessionTransition(status string)
	RecordProfileLoadFailure(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSessionTransition(string)  {}
func (nopRecorder) RecordProfileLoadFailure(string) {}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the observer logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Observer) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Observer) { o.recorder = r }
}

// Observer owns the process-wide session state. It changes only on
// provider notifications and completed profile loads.
type Observer struct {
	source   Source
	loader   ProfileLoader
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	state   State
	gen     uint64
	subs    map[*Subscription]struct{}
	started bool
	stopped bool
	detach  func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewObserver creates an Observer in StatusUnknown. Call Start to attach
// it to the source.
func NewObserver(source Source, loader ProfileLoader, opts ...Option) (*Observer, error) {
	if source == nil {
		return nil, oops.Code("SESSION_OBSERVER_INVALID").Errorf("session source is required")
	}
	if loader == nil {
		return nil, oops.Code("SESSION_OBSERVER_INVALID").Errorf("profile loader is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		source:   source,
		loader:   loader,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		subs:     make(map[*Subscription]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start subscribes to the source. It is an error to start twice or after
// Stop.
func (o *Observer) Start() error {
	o.mu.Lock()
	switch {
	case o.stopped:
		o.mu.Unlock()
		return oops.Code("SESSION_STOPPED").Errorf("observer is stopped")
	case o.started:
		o.mu.Unlock()
		return oops.Code("SESSION_ALREADY_STARTED").Errorf("observer already started")
	}
	o.started = true
	o.mu.Unlock()

	detach := o.source.OnSessionChange(o.handle)

	o.mu.Lock()
	if o.stopped {
		// Stop ran while attaching and found no detach to call.
		o.mu.Unlock()
		detach()
		return nil
	}
	o.detach = detach
	o.mu.Unlock()
	return nil
}

// Stop detaches from the source, abandons in-flight profile loads, waits
// for them to exit and closes every subscription.
func (o *Observer) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	detach := o.detach
	o.mu.Unlock()

	if detach != nil {
		detach()
	}
	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	for sub := range o.subs {
		sub.closeLocked()
	}
	clear(o.subs)
	o.mu.Unlock()
}

// Current returns the latest state.
func (o *Observer) Current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a subscription whose channel first yields the current
// state. A stopped observer returns an already-closed subscription.
func (o *Observer) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan State, 1), owner: o}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		sub.closeLocked()
		return sub
	}
	o.subs[sub] = struct{}{}
	sub.offer(o.state)
	return sub
}

func (o *Observer) unsubscribe(sub *Subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subs, sub)
	sub.closeLocked()
}

// publishLocked replaces the state and offers it to every subscriber.
func (o *Observer) publishLocked(s State) {
	o.state = s
	for sub := range o.subs {
		sub.offer(s)
	}
}

func (o *Observer) handle(id *auth.Identity) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}

	next := StatusSignedOut
	if id != nil {
		next = StatusSignedIn
	}
	if o.state.Status == next && sameIdentity(o.state.Identity, id) {
		o.mu.Unlock()
		return
	}

	o.gen++
	gen := o.gen
	o.publishLocked(State{Status: next, Identity: cloneIdentity(id)})
	if next == StatusSignedIn {
		o.wg.Add(1)
	}
	o.mu.Unlock()

	o.recorder.RecordSessionTransition(next.String())
	o.logger.Info("session changed", "status", next.String(), "uid", uidOf(id))

	if next == StatusSignedIn {
		go func() {
			defer o.wg.Done()
			_ = o.load(o.ctx, gen, id.UID)
		}()
	}
}

// load fetches the record for uid and publishes it when gen is still the
// current session. A missing record is logged, never fatal.
func (o *Observer) load(ctx context.Context, gen uint64, uid string) error {
	ctx = logging.WithUID(ctx, uid)
	rec, err := o.loader.Get(ctx, uid)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped || gen != o.gen {
		return nil
	}
	if err != nil {
		kind := profile.KindOf(err)
		o.recorder.RecordProfileLoadFailure(strings.ToLower(string(kind)))
		if kind == profile.KindNotFound {
			o.logger.WarnContext(ctx, "profile record missing for signed-in identity")
		} else {
			errutil.Log(ctx, o.logger, slog.LevelWarn, "profile load failed", err)
		}
		return err
	}
	next := o.state
	next.Profile = rec
	o.publishLocked(next)
	return nil
}

// ReloadProfile fetches the current identity's record again and publishes
// it. It is a no-op when signed out.
func (o *Observer) ReloadProfile(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped || o.state.Status != StatusSignedIn {
		o.mu.Unlock()
		return nil
	}
	gen, uid := o.gen, o.state.Identity.UID
	o.mu.Unlock()

	return o.load(ctx, gen, uid)
}

func uidOf(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.UID
}
