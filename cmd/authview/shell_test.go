// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/idp"
	"github.com/authview/authview/internal/observability"
	"github.com/authview/authview/internal/profile"
	"github.com/authview/authview/internal/screen"
	"github.com/authview/authview/internal/session"
	"github.com/authview/authview/internal/store"
	"github.com/authview/authview/pkg/errutil"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// syncBuffer can be read by a script step while the shell writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// step is one input line. before runs once the previous line has been
// handled; line, when set, computes the input at that point.
type step struct {
	text   string
	before func()
	line   func() string
}

func say(text string) step { return step{text: text} }

// script feeds one step per Read so bufio.Scanner only asks for the next
// line after dispatching the previous one.
type script struct {
	steps []step
	next  int
}

func (s *script) Read(p []byte) (int, error) {
	if s.next >= len(s.steps) {
		return 0, io.EOF
	}
	st := s.steps[s.next]
	s.next++
	if st.before != nil {
		st.before()
	}
	text := st.text
	if st.line != nil {
		text = st.line()
	}
	return copy(p, text+"\n"), nil
}

// flakyStore fails selected operations of an in-memory store.
type flakyStore struct {
	store.DocumentStore

	mu                sync.Mutex
	setFailures       int
	failOwnedDeletion bool
}

func (s *flakyStore) SetRecord(ctx context.Context, uid string, fields profile.Fields) error {
	s.mu.Lock()
	if s.setFailures > 0 {
		s.setFailures--
		s.mu.Unlock()
		return fmt.Errorf("%w: connection reset", profile.ErrUnavailable)
	}
	s.mu.Unlock()
	return s.DocumentStore.SetRecord(ctx, uid, fields)
}

func (s *flakyStore) DeleteOwnedContent(ctx context.Context, uid string) (int, error) {
	if s.failOwnedDeletion {
		return 0, fmt.Errorf("%w: timeout", profile.ErrUnavailable)
	}
	return s.DocumentStore.DeleteOwnedContent(ctx, uid)
}

type shellFixture struct {
	clock *clock
	store *flakyStore
	deps  *ShellDeps
}

func newShellFixture() *shellFixture {
	f := &shellFixture{
		clock: &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		store: &flakyStore{DocumentStore: store.NewMemoryStore()},
	}
	f.deps = &ShellDeps{
		StoreOpener: func(context.Context, store.Options) (store.DocumentStore, error) {
			return f.store, nil
		},
		ProviderFactory: func(opts ...idp.Option) (*idp.Provider, error) {
			return idp.New(append(opts,
				idp.WithClock(f.clock.now),
				idp.WithHashParams(idp.HashParams{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}),
			)...)
		},
		ProfileBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.NewConstant(time.Millisecond))
		},
	}
	return f
}

// run executes the shell over steps and returns everything it printed.
func (f *shellFixture) run(t *testing.T, out *syncBuffer, steps ...step) string {
	t.Helper()
	isolate(t)
	if out == nil {
		out = &syncBuffer{}
	}
	cmd := newRootCmd(f.deps, nil)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(&script{steps: steps})
	cmd.SetArgs([]string{"shell"})
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestShell_StartsSignedOut(t *testing.T) {
	out := newShellFixture().run(t, nil, say("status"))
	assert.Contains(t, out, "session: signed out")
}

func TestShell_HelpAndUnknownCommands(t *testing.T) {
	out := newShellFixture().run(t, nil, say("help"), say("dance"), say("signin"))
	assert.Contains(t, out, "signup EMAIL PASSWORD CONFIRM FULL NAME")
	assert.Contains(t, out, "leave the shell")
	assert.Contains(t, out, `unknown command "dance"`)
	assert.Contains(t, out, "error: usage: signin EMAIL PASSWORD")
}

func TestShell_SignUpNotesAndSignIn(t *testing.T) {
	out := newShellFixture().run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann Lee"),
		say("status"),
		say("note remember the milk"),
		say("notes"),
		say("name Ann Smith"),
		say("status"),
		say("signout"),
		say("signin ann@example.com wrong12"),
		say("signin ann@example.com Secret1"),
		say("quit"),
		say("signout"),
	)

	assert.Contains(t, out, "account created for ann@example.com")
	assert.Contains(t, out, "signed in as ann@example.com")
	assert.Contains(t, out, "saved note")
	assert.Contains(t, out, "remember the milk")
	assert.Contains(t, out, "name updated")
	assert.Contains(t, out, "signed in as ann@example.com (Ann Smith)")
	assert.Contains(t, out, "session: signed out")
	assert.Contains(t, out, "error: The password is incorrect.")
	assert.Contains(t, out, "signed in as ann@example.com\n")
}

func TestShell_IncompleteForms(t *testing.T) {
	out := newShellFixture().run(t, nil,
		say("signin not-an-email Secret1"),
		say("signup ann@example.com Secret1 Other1 Ann"),
		say("name Ann"),
	)
	assert.Contains(t, out, "error: missing or invalid: email")
	assert.Contains(t, out, "error: missing or invalid: confirm_password")
	assert.Contains(t, out, "error: no signed-in user")
}

func TestShell_SignUpWithTakenEmail(t *testing.T) {
	out := newShellFixture().run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("signout"),
		say("signup ann@example.com Secret2 Secret2 Imposter"),
	)
	assert.Contains(t, out, "error: This email address is already in use.")
}

func TestShell_PasswordReset(t *testing.T) {
	out := &syncBuffer{}
	codePattern := regexp.MustCompile(`reset code for ann@example.com: (\S+)`)
	resetLine := func() string {
		m := codePattern.FindStringSubmatch(out.String())
		require.Len(t, m, 2, "reset code was not printed")
		return "reset " + m[1] + " Brand9new"
	}

	newShellFixture().run(t, out,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("signout"),
		say("forgot ann@example.com"),
		step{line: resetLine},
		say("signin ann@example.com Secret1"),
		say("signin ann@example.com Brand9new"),
	)

	got := out.String()
	assert.Contains(t, got, screen.ResetSentMessage)
	assert.Contains(t, got, "password updated")
	assert.Contains(t, got, "error: The password is incorrect.")
	assert.Contains(t, got, "signed in as ann@example.com\n")
}

func TestShell_DeleteAfterReauthentication(t *testing.T) {
	f := newShellFixture()
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("note keep me"),
		step{text: "delete", before: func() { f.clock.advance(10 * time.Minute) }},
		say("credential ann@example.com Secret1"),
		say("choose password"),
		say("credential ann@example.com wrong12"),
		say("credential ann@example.com Secret1"),
		say("status"),
	)

	assert.Contains(t, out, "delete_account requires you to sign in again. Choose a provider: password")
	assert.Contains(t, out, "error: no credential is being requested")
	assert.Contains(t, out, "enter: credential EMAIL PASSWORD")
	assert.Contains(t, out, "that credential was rejected; try again or cancel")
	assert.Contains(t, out, "error: The password is incorrect.")
	assert.Contains(t, out, "verified; running delete_account")
	assert.Contains(t, out, "account deleted\n")
	assert.Contains(t, out, "session: signed out")
}

func TestShell_CancelledReauthenticationChangesNothing(t *testing.T) {
	f := newShellFixture()
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		step{text: "passwd Brand9new Brand9new", before: func() { f.clock.advance(10 * time.Minute) }},
		say("choose password"),
		say("cancel"),
		say("cancel"),
		say("signout"),
		say("signin ann@example.com Secret1"),
	)

	assert.Contains(t, out, "change_password requires you to sign in again")
	assert.Contains(t, out, "cancelled\n")
	assert.Contains(t, out, "nothing to cancel")
	assert.NotContains(t, out, "password changed")
	assert.Contains(t, out, "signed in as ann@example.com\n")
}

func TestShell_PasswordValidationBeforeProvider(t *testing.T) {
	out := newShellFixture().run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("passwd abc abc"),
		say("passwd Brand9new Brand9old"),
		say("passwd Brand9new Brand9new"),
	)
	assert.Contains(t, out, "error: Password must be at least 6 characters")
	assert.Contains(t, out, "error: Passwords do not match")
	assert.Contains(t, out, "password changed")
}

func TestShell_FederatedSignInAndReauthentication(t *testing.T) {
	f := newShellFixture()
	out := f.run(t, nil,
		say("federated apple apple-sub-1 ann@example.com"),
		step{text: "delete", before: func() { f.clock.advance(10 * time.Minute) }},
		say("choose google"),
		say("choose apple"),
		say("credential someone-else"),
		say("credential apple-sub-1"),
	)

	assert.Contains(t, out, "signed in as ann@example.com via apple.com")
	assert.Contains(t, out, "Choose a provider: apple.com")
	assert.Contains(t, out, "provider is not linked to this account")
	assert.Contains(t, out, "enter: credential SUBJECT (your apple.com account id)")
	assert.Contains(t, out, "that credential was rejected")
	assert.Contains(t, out, "account deleted\n")
}

func TestShell_FederatedSignInCannotClaimPasswordAccount(t *testing.T) {
	f := newShellFixture()
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("signout"),
		say("federated google intruder ann@example.com"),
		say("status"),
	)

	assert.Contains(t, out, "error: This email address is already in use.")
	assert.NotContains(t, out, "via google.com")
	assert.Contains(t, out, "signed out\n")
}

func TestShell_ProfileCreationIsRetried(t *testing.T) {
	f := newShellFixture()
	f.store.setFailures = 2
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann Lee"),
		say("status"),
	)

	assert.Contains(t, out, "account created, but the profile could not be saved; retrying")
	assert.Contains(t, out, "account created for ann@example.com")
	assert.Contains(t, out, "signed in as ann@example.com (Ann Lee)")
}

func TestShell_ProfileCreationGivesUp(t *testing.T) {
	f := newShellFixture()
	f.store.setFailures = 100
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("status"),
	)

	assert.Contains(t, out, "error: profile still missing")
	assert.Contains(t, out, "signed in as ann@example.com\n", "identity exists without a profile")
}

func TestShell_DeletionWithDataPending(t *testing.T) {
	f := newShellFixture()
	f.store.failOwnedDeletion = true
	out := f.run(t, nil,
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("note orphan"),
		say("delete"),
	)

	assert.Contains(t, out, "account deleted; stored data could not be removed")
	assert.Contains(t, out, "session: signed out")
}

type fakeObservability struct {
	metrics *observability.Metrics
	started bool
	stopped bool
}

func (f *fakeObservability) Start() (<-chan error, error) {
	f.started = true
	ch := make(chan error)
	close(ch)
	return ch, nil
}

func (f *fakeObservability) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeObservability) Addr() string                    { return "127.0.0.1:0" }
func (f *fakeObservability) Metrics() *observability.Metrics { return f.metrics }

func TestShell_RecordsMetricsWhenEnabled(t *testing.T) {
	f := newShellFixture()
	srv := &fakeObservability{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	var gotAddr string
	f.deps.ObservabilityServerFactory = func(addr string, _ observability.ReadinessChecker, _ *slog.Logger) ObservabilityServer {
		gotAddr = addr
		return srv
	}

	isolate(t)
	cmd := newRootCmd(f.deps, nil)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(&script{steps: []step{
		say("signup ann@example.com Secret1 Secret1 Ann"),
		say("signout"),
		say("signin ann@example.com Secret1"),
	}})
	cmd.SetArgs([]string{"--metrics-addr", "127.0.0.1:9464", "shell"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "127.0.0.1:9464", gotAddr)
	assert.True(t, srv.started)
	assert.True(t, srv.stopped)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.OperationsTotal.WithLabelValues("create_user", "account_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.OperationsTotal.WithLabelValues("authenticate", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.SessionTransitionsTotal.WithLabelValues("signed_in")))
}

func TestDescribeState(t *testing.T) {
	ann := &auth.Identity{UID: "u1", Email: "ann@example.com"}
	tests := []struct {
		name  string
		state session.State
		want  string
	}{
		{"unknown is loading", session.State{}, "loading"},
		{"signed out", session.State{Status: session.StatusSignedOut}, "signed out"},
		{"profile pending", session.State{Status: session.StatusSignedIn, Identity: ann}, "signed in as ann@example.com"},
		{"with profile", session.State{
			Status:   session.StatusSignedIn,
			Identity: ann,
			Profile:  &profile.Record{UID: "u1", Name: "Ann"},
		}, "signed in as ann@example.com (Ann)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeState(tt.state))
		})
	}
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]auth.ProviderType{
		"password":   auth.ProviderPassword,
		"Apple":      auth.ProviderApple,
		"google.com": auth.ProviderGoogle,
	} {
		got, err := parseProvider(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseProvider("facebook")
	errutil.AssertErrorCode(t, err, "SHELL_UNKNOWN_PROVIDER")
}
