// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package idp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockout(t *testing.T) {
	l := Lockout{Threshold: 3, Duration: time.Minute}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var a attempts
	for range 2 {
		a = l.fail(a, now)
		assert.Zero(t, l.remaining(a, now))
	}

	a = l.fail(a, now)
	assert.Equal(t, 3, a.failures)
	assert.Equal(t, time.Minute, l.remaining(a, now))
	assert.Equal(t, 30*time.Second, l.remaining(a, now.Add(30*time.Second)))
	assert.Zero(t, l.remaining(a, now.Add(time.Minute)))

	t.Run("expired lockout restarts the count", func(t *testing.T) {
		later := now.Add(2 * time.Minute)
		b := l.fail(a, later)
		assert.Equal(t, 1, b.failures)
		assert.Zero(t, l.remaining(b, later))
	})
}

func TestLockout_Disabled(t *testing.T) {
	l := Lockout{}
	now := time.Now()
	var a attempts
	for range 20 {
		a = l.fail(a, now)
	}
	assert.Zero(t, l.remaining(a, now))
}

func TestDefaultLockout(t *testing.T) {
	assert.Equal(t, Lockout{Threshold: 7, Duration: 15 * time.Minute}, DefaultLockout())
}
