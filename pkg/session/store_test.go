package session

import (
	"testing"
	"time"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateAllocatesNewSession(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "org1", sess.OrgID)
}

func TestGetOrCreateReturnsExistingSession(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	again, err := s.GetOrCreate("u1", "org1", sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionID, again.SessionID)
}

func TestGetOrCreateCrossTenantForbidden(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	_, err = s.GetOrCreate("u2", "org2", sess.SessionID)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestAppendBoundsHistoryToCap(t *testing.T) {
	s := New(3)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.Append(sess.SessionID, "org1", Entry{Role: "user", Content: "msg"})
		require.NoError(t, err)
	}

	hist, err := s.History(sess.SessionID, "org1", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 3, "history must never exceed historyCap")
}

func TestAppendCrossTenantForbidden(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	_, err = s.Append(sess.SessionID, "org2", Entry{Role: "user", Content: "x"})
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))
}

func TestAppendMissingSessionNotFound(t *testing.T) {
	s := New(50)
	_, err := s.Append("nope", "org1", Entry{})
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestAppendRebuildsContextRecentAgentsMostRecentFirst(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	_, err = s.Append(sess.SessionID, "org1", Entry{Role: "assistant", AgentName: "triage-agent", Intent: "incident"})
	require.NoError(t, err)
	updated, err := s.Append(sess.SessionID, "org1", Entry{Role: "assistant", AgentName: "cost-analyzer", Intent: "billing"})
	require.NoError(t, err)

	require.NotEmpty(t, updated.Context.RecentAgents)
	assert.Equal(t, "cost-analyzer", updated.Context.RecentAgents[0], "most recently used agent must be first")
	assert.Equal(t, "triage-agent", updated.Context.RecentAgents[1])
}

func TestAppendTracksFavoriteAgentsByUsageCount(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Append(sess.SessionID, "org1", Entry{Role: "assistant", AgentName: "triage-agent"})
		require.NoError(t, err)
	}
	updated, err := s.Append(sess.SessionID, "org1", Entry{Role: "assistant", AgentName: "cost-analyzer"})
	require.NoError(t, err)

	require.NotEmpty(t, updated.Context.FavoriteAgents)
	assert.Equal(t, "triage-agent", updated.Context.FavoriteAgents[0])
}

func TestHistoryAppliesLimit(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := s.Append(sess.SessionID, "org1", Entry{Role: "user", Content: "x"})
		require.NoError(t, err)
	}

	hist, err := s.History(sess.SessionID, "org1", 3)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestClearResetsHistoryAndContext(t *testing.T) {
	s := New(50)
	sess, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)
	_, err = s.Append(sess.SessionID, "org1", Entry{Role: "user", Content: "x", AgentName: "a"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(sess.SessionID, "org1"))

	hist, err := s.History(sess.SessionID, "org1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestPurgeIdleRemovesOnlyStaleSessions(t *testing.T) {
	s := New(50)
	fresh, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)
	stale, err := s.GetOrCreate("u2", "org1", "")
	require.NoError(t, err)

	s.byID[stale.SessionID].session.LastActivityAt = time.Now().Add(-48 * time.Hour)

	purged := s.PurgeIdle(time.Now().Add(-24 * time.Hour))
	assert.Equal(t, 1, purged)

	_, err = s.History(fresh.SessionID, "org1", 0)
	assert.NoError(t, err)
	_, err = s.History(stale.SessionID, "org1", 0)
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestInsightsAggregatesAcrossSessions(t *testing.T) {
	s := New(50)
	sess1, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)
	sess2, err := s.GetOrCreate("u1", "org1", "")
	require.NoError(t, err)

	_, err = s.Append(sess1.SessionID, "org1", Entry{Role: "user", Content: "hi"})
	require.NoError(t, err)
	_, err = s.Append(sess2.SessionID, "org1", Entry{Role: "user", Content: "hi"})
	require.NoError(t, err)

	ins := s.Insights("u1")
	assert.Equal(t, 2, ins.TotalSessions)
	assert.Equal(t, 2, ins.TotalMessages)
}
