package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/agentcore/pkg/auth"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/session"
)

func TestServiceRunAllPurgesIdleSessions(t *testing.T) {
	sessions := session.New(10)
	_, err := sessions.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	attempts := auth.NewAttemptLog(config.LockoutConfig{MaxFailures: 5, Window: time.Minute})
	tokens := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)

	svc := NewService(Config{Interval: time.Hour, SessionIdleTTL: time.Millisecond}, sessions, attempts, tokens)
	time.Sleep(5 * time.Millisecond)
	svc.runAll()

	purged := sessions.PurgeIdle(time.Now())
	assert.Equal(t, 0, purged, "runAll should already have purged the idle session")
}

func TestServiceRunAllSweepsAttemptLogAndRevocations(t *testing.T) {
	sessions := session.New(10)
	attempts := auth.NewAttemptLog(config.LockoutConfig{MaxFailures: 3, Window: time.Millisecond})
	tokens := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Millisecond, time.Millisecond)

	attempts.RecordFailure("user@example.com", time.Now())
	tokens.RevokeAllForUser("u1", time.Now())

	svc := NewService(Config{Interval: time.Hour, SessionIdleTTL: time.Hour}, sessions, attempts, tokens)
	time.Sleep(5 * time.Millisecond)

	assert.NotPanics(t, func() { svc.runAll() })
}

func TestStartAndStopRunsLoopAtLeastOnce(t *testing.T) {
	sessions := session.New(10)
	sess, err := sessions.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	attempts := auth.NewAttemptLog(config.LockoutConfig{MaxFailures: 5, Window: time.Minute})
	tokens := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)

	svc := NewService(Config{Interval: time.Hour, SessionIdleTTL: 0}, sessions, attempts, tokens)
	svc.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	svc.Stop()

	_, err = sessions.History(sess.SessionID, "org1", 10)
	assert.Error(t, err, "the only session registered should have been purged by the initial sweep")
}

func TestStopWithoutStartIsANoOp(t *testing.T) {
	svc := NewService(Config{Interval: time.Hour, SessionIdleTTL: time.Hour}, session.New(10), auth.NewAttemptLog(config.LockoutConfig{MaxFailures: 5, Window: time.Minute}), auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour))
	assert.NotPanics(t, svc.Stop)
}
