// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package session

import "sync"

// Subscription delivers session states. Its channel holds at most one
// unread state; a newer state replaces an unread older one.
type Subscription struct {
	ch     chan State
	owner  *Observer
	closed bool
	once   sync.Once
}

// C returns the delivery channel. It is closed by Close or Observer.Stop.
func (s *Subscription) C() <-chan State {
	return s.ch
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.owner != nil {
			s.owner.unsubscribe(s)
		}
	})
}

// offer performs a last-write-wins send. Callers hold the observer lock.
func (s *Subscription) offer(st State) {
	if s.closed {
		return
	}
	select {
	case s.ch <- st:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- st:
	default:
	}
}

// closeLocked closes the channel once. Callers hold the observer lock.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
