// Package permission implements the Permission Evaluator (spec §4.5): a
// pure function mapping (user, resource kind, action) to allow/deny. No
// component branches on role directly; every authorization check goes
// through Allowed.
package permission

import "github.com/coreforge/agentcore/pkg/identity"

// ResourceKind is a named category of protected resource.
type ResourceKind string

const (
	ResourceWorkflows    ResourceKind = "workflows"
	ResourceAgents       ResourceKind = "agents"
	ResourceAnalytics    ResourceKind = "analytics"
	ResourceOrg          ResourceKind = "org"
	ResourceTeam         ResourceKind = "team"
	ResourceUser         ResourceKind = "user"
	ResourceBilling      ResourceKind = "billing"
	ResourceFeatureFlags ResourceKind = "feature_flags"
)

// Action is an operation performed against a ResourceKind.
type Action string

const (
	ActionCreate  Action = "create"
	ActionView    Action = "view"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionApprove Action = "approve"
)

// Permission is the grant unit: "<resource_kind>:<action>", e.g.
// "workflows:execute". ViewPermission returns the view-grant for a
// resource, the only kind ReadOnly ever holds.
type Permission string

func permissionFor(kind ResourceKind, action Action) Permission {
	return Permission(string(kind) + ":" + string(action))
}

// ViewPermission is the view-grant for kind.
func ViewPermission(kind ResourceKind) Permission {
	return permissionFor(kind, ActionView)
}

// roleGrants is the declarative role → permission table (spec §4.5). It is
// additive: a user's effective grants are the union across all roles held.
var roleGrants = map[identity.Role][]Permission{
	identity.RoleOrgOwner: {
		permissionFor(ResourceOrg, ActionCreate), permissionFor(ResourceOrg, ActionView),
		permissionFor(ResourceOrg, ActionUpdate), permissionFor(ResourceOrg, ActionDelete),
		permissionFor(ResourceTeam, ActionCreate), permissionFor(ResourceTeam, ActionView),
		permissionFor(ResourceTeam, ActionUpdate), permissionFor(ResourceTeam, ActionDelete),
		permissionFor(ResourceUser, ActionCreate), permissionFor(ResourceUser, ActionView),
		permissionFor(ResourceUser, ActionUpdate), permissionFor(ResourceUser, ActionDelete),
		permissionFor(ResourceBilling, ActionView), permissionFor(ResourceBilling, ActionUpdate),
		permissionFor(ResourceWorkflows, ActionCreate), permissionFor(ResourceWorkflows, ActionView),
		permissionFor(ResourceWorkflows, ActionExecute), permissionFor(ResourceWorkflows, ActionApprove),
		permissionFor(ResourceAgents, ActionView), permissionFor(ResourceAgents, ActionExecute),
		permissionFor(ResourceAnalytics, ActionView),
		permissionFor(ResourceFeatureFlags, ActionView), permissionFor(ResourceFeatureFlags, ActionUpdate),
	},
	identity.RoleOrgAdmin: {
		permissionFor(ResourceOrg, ActionView), permissionFor(ResourceOrg, ActionUpdate),
		permissionFor(ResourceTeam, ActionCreate), permissionFor(ResourceTeam, ActionView),
		permissionFor(ResourceTeam, ActionUpdate), permissionFor(ResourceTeam, ActionDelete),
		permissionFor(ResourceUser, ActionCreate), permissionFor(ResourceUser, ActionView),
		permissionFor(ResourceUser, ActionUpdate),
		permissionFor(ResourceWorkflows, ActionCreate), permissionFor(ResourceWorkflows, ActionView),
		permissionFor(ResourceWorkflows, ActionExecute), permissionFor(ResourceWorkflows, ActionApprove),
		permissionFor(ResourceAgents, ActionView), permissionFor(ResourceAgents, ActionExecute),
		permissionFor(ResourceAnalytics, ActionView),
		permissionFor(ResourceFeatureFlags, ActionView),
	},
	identity.RoleTeamLead: {
		permissionFor(ResourceTeam, ActionView), permissionFor(ResourceTeam, ActionUpdate),
		permissionFor(ResourceUser, ActionView),
		permissionFor(ResourceWorkflows, ActionCreate), permissionFor(ResourceWorkflows, ActionView),
		permissionFor(ResourceWorkflows, ActionExecute), permissionFor(ResourceWorkflows, ActionApprove),
		permissionFor(ResourceAgents, ActionView), permissionFor(ResourceAgents, ActionExecute),
		permissionFor(ResourceAnalytics, ActionView),
	},
	identity.RoleTeamMember: {
		permissionFor(ResourceTeam, ActionView),
		permissionFor(ResourceUser, ActionView),
		permissionFor(ResourceWorkflows, ActionCreate), permissionFor(ResourceWorkflows, ActionView),
		permissionFor(ResourceWorkflows, ActionExecute),
		permissionFor(ResourceAgents, ActionView), permissionFor(ResourceAgents, ActionExecute),
	},
	identity.RoleReadOnly: {
		permissionFor(ResourceOrg, ActionView), permissionFor(ResourceTeam, ActionView),
		permissionFor(ResourceUser, ActionView), permissionFor(ResourceWorkflows, ActionView),
		permissionFor(ResourceAgents, ActionView), permissionFor(ResourceAnalytics, ActionView),
		permissionFor(ResourceFeatureFlags, ActionView),
	},
}

// required lists, for a (kind, action) pair, the permissions
// that satisfy it; any one grant is sufficient (any-of, per spec §4.5).
func required(kind ResourceKind, action Action) []Permission {
	return []Permission{permissionFor(kind, action)}
}

// Decision is the result of an Allowed check, always carrying a reason so
// callers can log or surface why access was denied (or bypassed).
type Decision struct {
	Allow  bool
	Reason string
}

// EffectivePermissions returns the de-duplicated union of grants across all
// roles the user holds.
func EffectivePermissions(u *identity.User) []Permission {
	seen := make(map[Permission]bool)
	var out []Permission
	for _, role := range u.Roles {
		for _, p := range roleGrants[role] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// EffectivePermissionStrings is EffectivePermissions rendered as plain
// strings, for embedding in a token payload (spec §6.3).
func EffectivePermissionStrings(u *identity.User) []string {
	perms := EffectivePermissions(u)
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Allowed is the single pure authorization function every component must
// call instead of branching on role. SuperAdmin always allows, but the
// decision is marked as a bypass so callers can log it (spec §4.5).
func Allowed(u *identity.User, kind ResourceKind, action Action) Decision {
	if u.HasRole(identity.RoleSuperAdmin) {
		return Decision{Allow: true, Reason: "SuperAdmin bypass"}
	}

	if u.IsReadOnly() && action != ActionView {
		return Decision{Allow: false, Reason: "ReadOnly role permits only view actions"}
	}

	granted := make(map[Permission]bool)
	for _, p := range EffectivePermissions(u) {
		granted[p] = true
	}

	for _, need := range required(kind, action) {
		if granted[need] {
			return Decision{Allow: true, Reason: "granted via role permissions"}
		}
	}
	return Decision{Allow: false, Reason: "no role grants " + string(kind) + ":" + string(action)}
}
