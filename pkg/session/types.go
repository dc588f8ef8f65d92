// Package session implements the Session Store (spec §4.6): bounded
// conversation history per (user_id, session_id) with a derived, rolling
// SessionContext, isolated per tenant.
package session

import "time"

// Entry is one conversational turn appended to a session's history.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the derived, rolling summary of a session's recent activity
// (spec §4.6 append semantics).
type Context struct {
	RecentAgents   []string `json:"recent_agents"`
	RecentTopics   []string `json:"recent_topics"`
	FavoriteAgents []string `json:"favorite_agents"`
	Summary        string   `json:"summary"`
}

// Session is the Session Store's entity (spec §3).
type Session struct {
	SessionID      string          `json:"session_id"`
	UserID         string          `json:"user_id"`
	OrgID          string          `json:"org_id"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	MessageCount   int             `json:"message_count"`
	History        []Entry         `json:"history"`
	Context        Context         `json:"context"`
	Preferences    map[string]any  `json:"preferences,omitempty"`
}

// Insights is the aggregate returned by insights(user_id).
type Insights struct {
	UserID          string         `json:"user_id"`
	TotalSessions   int            `json:"total_sessions"`
	TotalMessages   int            `json:"total_messages"`
	FavoriteAgents  []string       `json:"favorite_agents"`
	AgentUsageCount map[string]int `json:"agent_usage_count"`
}
