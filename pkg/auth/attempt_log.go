package auth

import (
	"sync"
	"time"

	"github.com/coreforge/agentcore/pkg/config"
)

// lockoutState is one identifier's position in the Clean → Counting(n) →
// Locked(until) state machine (spec §4.2).
type lockoutState struct {
	failures     int
	windowStart  time.Time
	lockedUntil  time.Time
}

// AttemptLog tracks failed-credential counts per identifier (the client key
// the caller passes to Login, e.g. the client IP) and locks an identifier
// out once its failures reach the configured threshold within the
// configured window. A successful login clears the identifier back to Clean.
type AttemptLog struct {
	mu     sync.Mutex
	states map[string]*lockoutState
	policy config.LockoutConfig
}

// NewAttemptLog constructs an AttemptLog governed by policy.
func NewAttemptLog(policy config.LockoutConfig) *AttemptLog {
	return &AttemptLog{
		states: make(map[string]*lockoutState),
		policy: policy,
	}
}

// Locked reports whether identifier is currently in the Locked state.
func (a *AttemptLog) Locked(identifier string, now time.Time) (bool, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[identifier]
	if !ok {
		return false, time.Time{}
	}
	if st.lockedUntil.IsZero() || now.After(st.lockedUntil) {
		return false, time.Time{}
	}
	return true, st.lockedUntil
}

// RecordFailure transitions identifier toward Locked. It returns true if
// this failure just caused a transition into Locked.
func (a *AttemptLog) RecordFailure(identifier string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[identifier]
	if !ok || now.Sub(st.windowStart) > a.policy.Window {
		st = &lockoutState{windowStart: now}
		a.states[identifier] = st
	}

	// An expired lock does not carry its failure count forward; it resets
	// to Counting(1) on the first failure after expiry.
	if !st.lockedUntil.IsZero() && now.After(st.lockedUntil) {
		st.failures = 0
		st.windowStart = now
		st.lockedUntil = time.Time{}
	}

	st.failures++
	if st.failures >= a.policy.MaxFailures {
		st.lockedUntil = now.Add(a.policy.Window)
		return true
	}
	return false
}

// RecordSuccess resets identifier to Clean.
func (a *AttemptLog) RecordSuccess(identifier string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, identifier)
}

// Sweep drops entries that are neither locked nor within an active counting
// window, bounding memory independent of traffic (mirrors the teacher's
// idle-session sweep cadence; wired from pkg/cleanup).
func (a *AttemptLog) Sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, st := range a.states {
		stillLocked := !st.lockedUntil.IsZero() && now.Before(st.lockedUntil)
		stillCounting := now.Sub(st.windowStart) <= a.policy.Window
		if !stillLocked && !stillCounting {
			delete(a.states, id)
		}
	}
}
