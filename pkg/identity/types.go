// Package identity implements the Identity Store (spec §4.1): users keyed
// by user_id with secondary uniqueness indexes on email and username.
package identity

import "time"

// Role is one of the fixed role names a user may hold (spec §3).
type Role string

const (
	RoleSuperAdmin  Role = "SuperAdmin"
	RoleOrgOwner    Role = "OrgOwner"
	RoleOrgAdmin    Role = "OrgAdmin"
	RoleTeamLead    Role = "TeamLead"
	RoleTeamMember  Role = "TeamMember"
	RoleReadOnly    Role = "ReadOnly"
)

// Credential is the only form a password is ever stored or transmitted in:
// a salted, iterated KDF digest. No API response includes the Credential.
type Credential struct {
	KDFName    string
	Iterations int
	Salt       []byte
	Hash       []byte
}

// User is the Identity Store's entity (spec §3).
type User struct {
	UserID        string
	Email         string
	Username      string
	FullName      string
	Credential    Credential
	OrgID         string
	TeamIDs       []string
	Roles         []Role
	MFAEnrolled   bool
	MFASecret     string // opaque; set at enrollment, before MFAEnrolled is confirmed
	Active        bool
	CreatedAt     time.Time
	LastLoginAt   *time.Time
	Preferences   map[string]any
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(r Role) bool {
	for _, role := range u.Roles {
		if role == r {
			return true
		}
	}
	return false
}

// IsReadOnly reports the spec §3 invariant check-point: ReadOnly excludes
// all other roles, so its presence alone determines read-only status.
func (u *User) IsReadOnly() bool {
	return u.HasRole(RoleReadOnly)
}
