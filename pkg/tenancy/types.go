// Package tenancy implements the Tenancy Manager (spec §4.3): the
// organization/team/membership graph and the plan → quota binding table.
package tenancy

import (
	"time"

	"github.com/coreforge/agentcore/pkg/config"
)

// Organization is the tenant root (spec §3).
type Organization struct {
	OrgID        string
	Name         string
	Domain       string
	PlanType     config.PlanType
	BillingEmail string
	OwnerUserID  string
	Active       bool
	CreatedAt    time.Time
	Settings     map[string]any

	// Quotas is copied from the plan→quota binding table for PlanType by
	// CreateOrg and SetPlan and stored with the org record. Usage is not
	// kept here: it lives in pkg/quota's in-memory Engine, keyed by OrgID.
	Quotas map[config.QuotaResource]int
}

// Team is a grouping under an org (spec §3).
type Team struct {
	TeamID      string
	OrgID       string
	Name        string
	LeadUserID  string
	Members     []string
	Permissions map[string]bool
}

// HasMember reports whether userID belongs to the team.
func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// TenantContext is what get_tenant_context returns: everything the request
// shell needs to authorize and route a single request (spec §4.3, §4.9).
type TenantContext struct {
	Org         *Organization
	Teams       []*Team
	Roles       []string
	Permissions []string
	Preferences map[string]any
}
