package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreforge/agentcore/pkg/apierr"
)

const (
	recentAgentsCap = 10
	recentTopicsCap = 15
	favoriteTopK    = 5
	summaryEntries  = 5
)

// sessionState is the mutable record backing one Session; its fields are
// only ever touched under Store.mu, the single lock that guards every
// session in the Store.
type sessionState struct {
	session *Session
}

// Store is the Session Store (spec §4.6). It is in-memory: session state
// is conversational scratch space, not the system of record (workflow
// results and tenancy/identity data are durable; sessions are not named in
// the crash-recovery contract §4.8 carries for workflows).
type Store struct {
	mu         sync.Mutex
	byID       map[string]*sessionState
	byUser     map[string][]string // user_id -> session_ids, for insights/purge
	usageByUser map[string]map[string]int
	historyCap int
}

// New constructs a Session Store bounding history at historyCap entries
// per session (spec §6.6 history_cap, default 50).
func New(historyCap int) *Store {
	return &Store{
		byID:        make(map[string]*sessionState),
		byUser:      make(map[string][]string),
		usageByUser: make(map[string]map[string]int),
		historyCap:  historyCap,
	}
}

// GetOrCreate implements get_or_create(user_id, session_id?). If sessionID
// is empty a new one is allocated. If sessionID refers to an existing
// session, its org_id must equal orgID or the call fails Forbidden (spec
// §4.6 tenant isolation, testable property 5).
func (s *Store) GetOrCreate(userID, orgID, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if st, ok := s.byID[sessionID]; ok {
			if st.session.OrgID != orgID {
				return nil, apierr.New(apierr.KindForbidden, "session belongs to a different organization")
			}
			return st.session, nil
		}
	} else {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	sess := &Session{
		SessionID:      sessionID,
		UserID:         userID,
		OrgID:          orgID,
		CreatedAt:      now,
		LastActivityAt: now,
		Context:        Context{},
		Preferences:    map[string]any{},
	}
	s.byID[sessionID] = &sessionState{session: sess}
	s.byUser[userID] = append(s.byUser[userID], sessionID)
	return sess, nil
}

// Append implements append(session_id, entry): updates last_activity_at,
// increments message_count, appends to the bounded ring, and rebuilds
// Context (spec §4.6).
func (s *Store) Append(sessionID, orgID string, entry Entry) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[sessionID]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "session not found")
	}
	sess := st.session
	if sess.OrgID != orgID {
		return nil, apierr.New(apierr.KindForbidden, "session belongs to a different organization")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	sess.LastActivityAt = entry.Timestamp
	sess.MessageCount++

	sess.History = append(sess.History, entry)
	if len(sess.History) > s.historyCap {
		sess.History = sess.History[len(sess.History)-s.historyCap:]
	}

	if entry.AgentName != "" {
		usage := s.usageByUser[sess.UserID]
		if usage == nil {
			usage = make(map[string]int)
			s.usageByUser[sess.UserID] = usage
		}
		usage[entry.AgentName]++
	}

	sess.Context = rebuildContext(sess, s.usageByUser[sess.UserID])
	return sess, nil
}

// rebuildContext derives recent_agents/recent_topics/favorite_agents/summary
// from a session's current history and the user's agent-usage counters
// (spec §4.6).
func rebuildContext(sess *Session, usage map[string]int) Context {
	var recentAgents, recentTopics []string
	for i := len(sess.History) - 1; i >= 0; i-- {
		e := sess.History[i]
		if e.AgentName != "" {
			recentAgents = moveToFront(recentAgents, e.AgentName, recentAgentsCap)
		}
		if e.Intent != "" {
			recentTopics = moveToFront(recentTopics, e.Intent, recentTopicsCap)
		}
	}

	return Context{
		RecentAgents:   recentAgents,
		RecentTopics:   recentTopics,
		FavoriteAgents: topK(usage, favoriteTopK),
		Summary:        summarize(sess.History),
	}
}

// moveToFront appends name to out unless it is already present, then
// truncates to cap. The caller walks history newest to oldest, so the
// first occurrence recorded is the most recent and out ends up ordered
// most-recent-first.
func moveToFront(out []string, name string, cap int) []string {
	for _, existing := range out {
		if existing == name {
			return out
		}
	}
	out = append(out, name)
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}

// topK returns the K agent names with the highest usage counts, ties
// broken by name for determinism.
func topK(usage map[string]int, k int) []string {
	type kv struct {
		name  string
		count int
	}
	entries := make([]kv, 0, len(usage))
	for name, count := range usage {
		entries = append(entries, kv{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > k {
		entries = entries[:k]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// summarize builds a one-line digest of the newest summaryEntries entries'
// agents and intents.
func summarize(history []Entry) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - summaryEntries
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, e := range history[start:] {
		switch {
		case e.AgentName != "" && e.Intent != "":
			parts = append(parts, e.AgentName+"/"+e.Intent)
		case e.AgentName != "":
			parts = append(parts, e.AgentName)
		case e.Intent != "":
			parts = append(parts, e.Intent)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

// History implements history(session_id, limit): the most recent limit
// entries, oldest first.
func (s *Store) History(sessionID, orgID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[sessionID]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "session not found")
	}
	if st.session.OrgID != orgID {
		return nil, apierr.New(apierr.KindForbidden, "session belongs to a different organization")
	}

	hist := st.session.History
	if limit > 0 && limit < len(hist) {
		hist = hist[len(hist)-limit:]
	}
	out := make([]Entry, len(hist))
	copy(out, hist)
	return out, nil
}

// Clear implements clear(session_id): empties history and resets context.
func (s *Store) Clear(sessionID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byID[sessionID]
	if !ok {
		return apierr.New(apierr.KindNotFound, "session not found")
	}
	if st.session.OrgID != orgID {
		return apierr.New(apierr.KindForbidden, "session belongs to a different organization")
	}
	st.session.History = nil
	st.session.Context = Context{}
	st.session.MessageCount = 0
	return nil
}

// PurgeIdle implements purge_idle(older_than): deletes every session whose
// last_activity_at predates the cutoff. Intended to be driven periodically
// by pkg/cleanup.
func (s *Store) PurgeIdle(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, st := range s.byID {
		if st.session.LastActivityAt.Before(olderThan) {
			delete(s.byID, id)
			purged++
			ids := s.byUser[st.session.UserID]
			for i, candidate := range ids {
				if candidate == id {
					s.byUser[st.session.UserID] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
		}
	}
	return purged
}

// Insights implements insights(user_id): an aggregate across all of the
// user's sessions.
func (s *Store) Insights(userID string) Insights {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins := Insights{
		UserID:          userID,
		AgentUsageCount: map[string]int{},
	}
	for name, count := range s.usageByUser[userID] {
		ins.AgentUsageCount[name] = count
	}
	for _, sessionID := range s.byUser[userID] {
		st, ok := s.byID[sessionID]
		if !ok {
			continue
		}
		ins.TotalSessions++
		ins.TotalMessages += st.session.MessageCount
	}
	ins.FavoriteAgents = topK(ins.AgentUsageCount, favoriteTopK)
	return ins
}
