// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

// Package credential holds the mutable credential input behind the sign-in
// and sign-up screens together with its derived validity.
package credential

import (
	"sync"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/validation"
)

// Input is the raw field content. It is never persisted.
type Input struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// Snapshot is Input plus everything derived from it, computed at the same
// instant so readers never observe a stale flag.
type Snapshot struct {
	Input
	EmailCheck     validation.Result
	PasswordCheck  validation.Result
	ConfirmCheck   validation.Result
	LoginComplete  bool
	SignUpComplete bool
}

// Form is safe for concurrent use.
type Form struct {
	mu       sync.Mutex
	policy   validation.PasswordPolicy
	input    Input
	derived  Snapshot
	watchers map[int]func(Snapshot)
	nextID   int
	seq      uint64

	// deliver orders watcher calls; delivered is the last seq handed out.
	deliver   sync.Mutex
	delivered uint64
}

// NewForm returns an empty form that checks passwords against policy.
func NewForm(policy validation.PasswordPolicy) *Form {
	f := &Form{policy: policy, watchers: make(map[int]func(Snapshot))}
	f.derived = derive(policy, f.input)
	return f
}

func derive(policy validation.PasswordPolicy, in Input) Snapshot {
	s := Snapshot{
		Input:        in,
		EmailCheck:   validation.ValidateEmail(in.Email),
		ConfirmCheck: validation.ConfirmPassword(in.Password, in.ConfirmPassword),
	}
	if in.Password != "" {
		s.PasswordCheck = policy.Check(in.Password)
	}
	s.LoginComplete = s.EmailCheck.Valid && in.Password != ""
	s.SignUpComplete = s.EmailCheck.Valid && s.PasswordCheck.Valid &&
		validation.PasswordsMatch(in.Password, in.ConfirmPassword) &&
		in.FullName != ""
	return s
}

// update applies fn under the lock, recomputes, then notifies watchers
// outside it. A snapshot older than one already delivered is dropped, so
// concurrent updates never leave a watcher on a stale view.
func (f *Form) update(fn func(*Input)) {
	f.mu.Lock()
	fn(&f.input)
	f.derived = derive(f.policy, f.input)
	f.seq++
	snap, seq := f.derived, f.seq
	watchers := make([]func(Snapshot), 0, len(f.watchers))
	for _, w := range f.watchers {
		watchers = append(watchers, w)
	}
	f.mu.Unlock()

	f.deliver.Lock()
	defer f.deliver.Unlock()
	if seq <= f.delivered {
		return
	}
	f.delivered = seq
	for _, w := range watchers {
		w(snap)
	}
}

func (f *Form) SetEmail(v string)           { f.update(func(in *Input) { in.Email = v }) }
func (f *Form) SetPassword(v string)        { f.update(func(in *Input) { in.Password = v }) }
func (f *Form) SetConfirmPassword(v string) { f.update(func(in *Input) { in.ConfirmPassword = v }) }
func (f *Form) SetFullName(v string)        { f.update(func(in *Input) { in.FullName = v }) }

// Snapshot returns the current input and derived state.
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.derived
}

// IsLoginComplete is true when the email is valid and a password is present.
func (f *Form) IsLoginComplete() bool { return f.Snapshot().LoginComplete }

// IsSignUpComplete additionally requires a policy-valid, confirmed password
// and a full name.
func (f *Form) IsSignUpComplete() bool { return f.Snapshot().SignUpComplete }

// EmailMessage is empty when the email is valid or untouched.
func (f *Form) EmailMessage() string { return f.Snapshot().EmailCheck.Message }

// PasswordMessage is empty when the password is valid or untouched.
func (f *Form) PasswordMessage() string { return f.Snapshot().PasswordCheck.Message }

// ConfirmPasswordMessage is empty when the confirmation matches or is untouched.
func (f *Form) ConfirmPasswordMessage() string { return f.Snapshot().ConfirmCheck.Message }

// ApplyAuthFailure resets fields after a failed sign-in. A wrong password
// clears only the password; every other kind clears email and password.
func (f *Form) ApplyAuthFailure(kind auth.ErrorKind) {
	f.update(func(in *Input) {
		in.Password = ""
		if kind != auth.KindWrongPassword {
			in.Email = ""
		}
	})
}

// Clear empties every field.
func (f *Form) Clear() {
	f.update(func(in *Input) { *in = Input{} })
}

// Watch registers fn to receive a snapshot after every mutation, in
// mutation order. fn must not mutate the form. The returned func
// unregisters it.
func (f *Form) Watch(fn func(Snapshot)) (cancel func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.watchers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
		})
	}
}
