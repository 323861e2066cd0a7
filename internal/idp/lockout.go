// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package idp

import "time"

// Lockout defaults.
const (
	DefaultLockoutThreshold = 7
	DefaultLockoutDuration  = 15 * time.Minute
)

// Lockout locks an account for Duration once Threshold consecutive
// password failures have accumulated. A zero Threshold disables it.
type Lockout struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockout returns the default policy.
func DefaultLockout() Lockout {
	return Lockout{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// attempts is the per-account failure state.
type attempts struct {
	failures    int
	lockedUntil time.Time
}

// remaining returns how long the account stays locked at now; zero when
// it is not locked.
func (l Lockout) remaining(a attempts, now time.Time) time.Duration {
	if a.lockedUntil.IsZero() || !a.lockedUntil.After(now) {
		return 0
	}
	return a.lockedUntil.Sub(now)
}

// fail records one failure and starts a lockout when the threshold is hit.
// An expired lockout starts a fresh count.
func (l Lockout) fail(a attempts, now time.Time) attempts {
	if !a.lockedUntil.IsZero() && !a.lockedUntil.After(now) {
		a = attempts{}
	}
	a.failures++
	if l.Threshold > 0 && a.failures >= l.Threshold {
		a.lockedUntil = now.Add(l.Duration)
	}
	return a
}
