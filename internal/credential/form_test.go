// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package credential_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/credential"
	"github.com/authview/authview/internal/validation"
)

func newForm() *credential.Form {
	return credential.NewForm(validation.DefaultPasswordPolicy())
}

func TestForm_UntouchedFieldsHaveNoMessages(t *testing.T) {
	f := newForm()

	assert.Empty(t, f.EmailMessage())
	assert.Empty(t, f.PasswordMessage())
	assert.Empty(t, f.ConfirmPasswordMessage())
	assert.False(t, f.IsLoginComplete())
	assert.False(t, f.IsSignUpComplete())
}

func TestForm_IsLoginComplete(t *testing.T) {
	emails := []string{"", "a", "a@b", "a@b.com", "x.y@mail.example.org"}
	passwords := []string{"", "x", "Secret1"}
	for _, e := range emails {
		for _, p := range passwords {
			f := newForm()
			f.SetEmail(e)
			f.SetPassword(p)
			want := validation.IsEmailValid(e) && p != ""
			assert.Equal(t, want, f.IsLoginComplete(), "email=%q password=%q", e, p)
		}
	}
}

func TestForm_IsSignUpComplete(t *testing.T) {
	f := newForm()
	f.SetEmail("a@b.com")
	f.SetPassword("Secret1")
	f.SetConfirmPassword("Secret1")
	assert.False(t, f.IsSignUpComplete(), "full name missing")

	f.SetFullName("Ann")
	assert.True(t, f.IsSignUpComplete())

	f.SetConfirmPassword("Secret2")
	assert.False(t, f.IsSignUpComplete())
	assert.Equal(t, validation.MsgPasswordsMismatch, f.ConfirmPasswordMessage())

	f.SetConfirmPassword("")
	assert.Empty(t, f.ConfirmPasswordMessage(), "empty confirm is not a mismatch")

	f.SetConfirmPassword("Secret1")
	f.SetPassword("short")
	assert.False(t, f.IsSignUpComplete())
	assert.Equal(t, "Password must be at least 6 characters", f.PasswordMessage())
}

func TestForm_UsesConfiguredPolicy(t *testing.T) {
	f := credential.NewForm(validation.PasswordPolicy{MinLength: 6, RequireDigit: true})
	f.SetPassword("abcdefg")
	assert.Equal(t, "Password must contain a digit", f.PasswordMessage())
	f.SetPassword("abcdef1")
	assert.Empty(t, f.PasswordMessage())
}

func TestForm_EmailMessage(t *testing.T) {
	f := newForm()
	f.SetEmail("not-an-email")
	assert.Equal(t, validation.MsgInvalidEmail, f.EmailMessage())
	f.SetEmail("a@b.com")
	assert.Empty(t, f.EmailMessage())
}

func TestForm_ApplyAuthFailure(t *testing.T) {
	kinds := []auth.ErrorKind{
		auth.KindInvalidEmail,
		auth.KindUserNotFound,
		auth.KindNetwork,
		auth.KindUnknown,
		auth.KindRequiresReauth,
	}

	t.Run("wrong password clears only the password", func(t *testing.T) {
		f := newForm()
		f.SetEmail("a@b.com")
		f.SetPassword("wrong")
		f.ApplyAuthFailure(auth.KindWrongPassword)

		snap := f.Snapshot()
		assert.Equal(t, "a@b.com", snap.Input.Email)
		assert.Empty(t, snap.Input.Password)
	})

	for _, kind := range kinds {
		t.Run(string(kind)+" clears both", func(t *testing.T) {
			f := newForm()
			f.SetEmail("a@b.com")
			f.SetPassword("Secret1")
			f.SetFullName("Ann")
			f.ApplyAuthFailure(kind)

			snap := f.Snapshot()
			assert.Empty(t, snap.Input.Email)
			assert.Empty(t, snap.Input.Password)
			assert.Equal(t, "Ann", snap.FullName)
		})
	}
}

func TestForm_Clear(t *testing.T) {
	f := newForm()
	f.SetEmail("a@b.com")
	f.SetPassword("Secret1")
	f.SetConfirmPassword("Secret1")
	f.SetFullName("Ann")
	f.Clear()

	assert.Equal(t, credential.Input{}, f.Snapshot().Input)
	assert.False(t, f.IsLoginComplete())
}

func TestForm_WatchReceivesFreshSnapshots(t *testing.T) {
	f := newForm()
	var got []credential.Snapshot
	cancel := f.Watch(func(s credential.Snapshot) { got = append(got, s) })

	f.SetEmail("a@b.com")
	f.SetPassword("Secret1")
	require.Len(t, got, 2)
	assert.False(t, got[0].LoginComplete)
	assert.True(t, got[1].LoginComplete)

	cancel()
	cancel()
	f.SetPassword("")
	assert.Len(t, got, 2)
}

func TestForm_ConcurrentMutation(t *testing.T) {
	f := newForm()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				f.SetEmail("a@b.com")
			} else {
				f.SetPassword("Secret1")
			}
			_ = f.IsLoginComplete()
		}()
	}
	wg.Wait()
	assert.True(t, f.IsLoginComplete())
}

func TestForm_WatchEndsOnLatestSnapshot(t *testing.T) {
	f := newForm()
	var last credential.Snapshot
	var calls int
	cancel := f.Watch(func(s credential.Snapshot) {
		last = s
		calls++
	})
	defer cancel()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 3 {
			case 0:
				f.SetEmail("a@b.com")
			case 1:
				f.SetPassword("Secret1")
			default:
				f.SetFullName("Ann")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, f.Snapshot(), last)
	assert.LessOrEqual(t, calls, 50)
	assert.Positive(t, calls)
}
