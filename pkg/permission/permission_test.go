package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreforge/agentcore/pkg/identity"
)

func userWithRoles(roles ...identity.Role) *identity.User {
	return &identity.User{UserID: "u1", Roles: roles}
}

func TestAllowedSuperAdminBypassesEverything(t *testing.T) {
	u := userWithRoles(identity.RoleSuperAdmin)
	d := Allowed(u, ResourceBilling, ActionDelete)
	assert.True(t, d.Allow)
	assert.Contains(t, d.Reason, "bypass")
}

func TestAllowedReadOnlyRestrictedToView(t *testing.T) {
	u := userWithRoles(identity.RoleReadOnly)

	assert.True(t, Allowed(u, ResourceWorkflows, ActionView).Allow)
	assert.False(t, Allowed(u, ResourceWorkflows, ActionExecute).Allow)
	assert.False(t, Allowed(u, ResourceOrg, ActionUpdate).Allow)
}

func TestAllowedTeamMemberCanExecuteAgentsButNotApproveWorkflows(t *testing.T) {
	u := userWithRoles(identity.RoleTeamMember)

	assert.True(t, Allowed(u, ResourceAgents, ActionExecute).Allow)
	assert.True(t, Allowed(u, ResourceWorkflows, ActionExecute).Allow)
	assert.False(t, Allowed(u, ResourceWorkflows, ActionApprove).Allow)
}

func TestAllowedTeamLeadCanApproveWorkflows(t *testing.T) {
	u := userWithRoles(identity.RoleTeamLead)
	assert.True(t, Allowed(u, ResourceWorkflows, ActionApprove).Allow)
}

func TestAllowedOrgOwnerCanManageBilling(t *testing.T) {
	u := userWithRoles(identity.RoleOrgOwner)
	assert.True(t, Allowed(u, ResourceBilling, ActionUpdate).Allow)
}

func TestAllowedOrgAdminCannotManageBilling(t *testing.T) {
	u := userWithRoles(identity.RoleOrgAdmin)
	assert.False(t, Allowed(u, ResourceBilling, ActionUpdate).Allow)
}

func TestAllowedNoRolesDeniesEverything(t *testing.T) {
	u := userWithRoles()
	d := Allowed(u, ResourceWorkflows, ActionView)
	assert.False(t, d.Allow)
	assert.Contains(t, d.Reason, "no role grants")
}

func TestAllowedUnionsMultipleRoles(t *testing.T) {
	u := userWithRoles(identity.RoleTeamMember, identity.RoleReadOnly)

	// ReadOnly's view-only restriction applies regardless of other grants.
	assert.False(t, Allowed(u, ResourceWorkflows, ActionExecute).Allow)
	assert.True(t, Allowed(u, ResourceWorkflows, ActionView).Allow)
}

func TestEffectivePermissionsDeduplicates(t *testing.T) {
	u := userWithRoles(identity.RoleTeamLead, identity.RoleTeamMember)
	perms := EffectivePermissions(u)

	seen := make(map[Permission]int)
	for _, p := range perms {
		seen[p]++
	}
	for p, count := range seen {
		assert.Equal(t, 1, count, "permission %s should not be duplicated", p)
	}
}

func TestEffectivePermissionStringsRoundTrip(t *testing.T) {
	u := userWithRoles(identity.RoleReadOnly)
	strs := EffectivePermissionStrings(u)
	assert.Contains(t, strs, string(ViewPermission(ResourceOrg)))
}
