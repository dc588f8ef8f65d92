package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coreforge/agentcore/pkg/config"
)

func lockoutPolicy() config.LockoutConfig {
	return config.LockoutConfig{MaxFailures: 3, Window: time.Minute}
}

func TestAttemptLogLocksAfterMaxFailures(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()

	assert.False(t, a.RecordFailure("alice", now))
	assert.False(t, a.RecordFailure("alice", now))
	assert.True(t, a.RecordFailure("alice", now), "third failure must cross the threshold")

	locked, _ := a.Locked("alice", now)
	assert.True(t, locked)
}

func TestAttemptLogUnlocksAfterWindow(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()

	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)

	later := now.Add(2 * time.Minute)
	locked, _ := a.Locked("alice", later)
	assert.False(t, locked, "lock must expire once its window has passed")
}

func TestAttemptLogRecordSuccessClearsState(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()

	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)
	a.RecordSuccess("alice")

	locked, _ := a.Locked("alice", now)
	assert.False(t, locked)

	// A fresh failure after a reset should start counting from 1, not 3.
	assert.False(t, a.RecordFailure("alice", now))
}

func TestAttemptLogIdentifiersAreIndependent(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()

	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)

	locked, _ := a.Locked("bob", now)
	assert.False(t, locked, "one identifier's lockout must not affect another")
}

func TestAttemptLogSweepDropsExpiredEntries(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()
	a.RecordFailure("alice", now)

	a.Sweep(now.Add(10 * time.Minute))

	a.mu.Lock()
	_, exists := a.states["alice"]
	a.mu.Unlock()
	assert.False(t, exists, "a long-idle identifier should be dropped by Sweep")
}

func TestAttemptLogRecordFailureAfterLockExpiryResetsCount(t *testing.T) {
	a := NewAttemptLog(lockoutPolicy())
	now := time.Now()

	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now)
	a.RecordFailure("alice", now) // locked

	afterExpiry := now.Add(2 * time.Minute)
	assert.False(t, a.RecordFailure("alice", afterExpiry), "a single failure after lock expiry must not immediately relock")
}
