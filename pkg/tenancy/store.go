package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/identity"
	"github.com/coreforge/agentcore/pkg/permission"
	"github.com/coreforge/agentcore/pkg/quota"
	"github.com/coreforge/agentcore/pkg/storage"
)

const (
	keyOrgByID      = "org:id:"
	keyOrgDomain    = "org:idx:domain:"
	keyTeamByID     = "team:id:"
	keyTeamOrgIndex = "team:orgidx:"
)

var (
	ErrNotFound      = errors.New("tenancy: not found")
	ErrAlreadyExists = errors.New("tenancy: already exists")
)

// Manager is the Tenancy Manager (spec §4.3). It owns the org/team graph
// and binds plan changes through to the Quota Engine so that usage counters
// survive a plan change while limits update atomically.
type Manager struct {
	db     storage.Store
	users  *identity.Store
	quota  *quota.Engine
	cfg    *config.Config
}

// New wires a Tenancy Manager.
func New(db storage.Store, users *identity.Store, quotaEngine *quota.Engine, cfg *config.Config) *Manager {
	return &Manager{db: db, users: users, quota: quotaEngine, cfg: cfg}
}

type orgRow struct {
	OrgID        string                        `json:"org_id"`
	Name         string                        `json:"name"`
	Domain       string                        `json:"domain"`
	PlanType     config.PlanType               `json:"plan_type"`
	BillingEmail string                        `json:"billing_email"`
	OwnerUserID  string                        `json:"owner_user_id"`
	Active       bool                          `json:"active"`
	CreatedAt    int64                         `json:"created_at"`
	Settings     map[string]any                `json:"settings,omitempty"`
	Quotas       map[config.QuotaResource]int  `json:"quotas"`
}

func orgFromRow(r *orgRow) *Organization {
	return &Organization{
		OrgID: r.OrgID, Name: r.Name, Domain: r.Domain, PlanType: r.PlanType,
		BillingEmail: r.BillingEmail, OwnerUserID: r.OwnerUserID, Active: r.Active,
		CreatedAt: time.Unix(0, r.CreatedAt), Settings: r.Settings, Quotas: r.Quotas,
	}
}

func orgToRow(o *Organization) orgRow {
	return orgRow{
		OrgID: o.OrgID, Name: o.Name, Domain: o.Domain, PlanType: o.PlanType,
		BillingEmail: o.BillingEmail, OwnerUserID: o.OwnerUserID, Active: o.Active,
		CreatedAt: o.CreatedAt.UnixNano(), Settings: o.Settings, Quotas: o.Quotas,
	}
}

// CreateOrg creates a new Organization with quota limits copied from the
// plan's defaults. OwnerUserID is set afterward via SetOwner once the owner
// User record exists (register creates the org before the user).
func (m *Manager) CreateOrg(ctx context.Context, orgID, name, domain, billingEmail string, planType config.PlanType) (*Organization, error) {
	limits, ok := m.cfg.DefaultPlanQuotas[planType]
	if !ok {
		return nil, apierr.New(apierr.KindInvalidInput, "unknown plan type")
	}

	org := &Organization{
		OrgID: orgID, Name: name, Domain: domain, PlanType: planType,
		BillingEmail: billingEmail, Active: true, CreatedAt: time.Now(),
		Settings: map[string]any{}, Quotas: cloneInts(limits),
	}

	raw, err := json.Marshal(orgToRow(org))
	if err != nil {
		return nil, fmt.Errorf("marshal org: %w", err)
	}
	if err := m.db.CompareAndSet(ctx, keyOrgByID+orgID, nil, raw); err != nil {
		if errors.Is(err, storage.ErrCASMismatch) {
			return nil, fmt.Errorf("%w: org_id", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("write org: %w", err)
	}

	if domain != "" {
		domainKey := keyOrgDomain + strings.ToLower(domain)
		if err := m.db.CompareAndSet(ctx, domainKey, nil, []byte(orgID)); err != nil && !errors.Is(err, storage.ErrCASMismatch) {
			return nil, fmt.Errorf("write domain index: %w", err)
		}
	}

	m.quota.SetLimits(orgID, limits)
	return org, nil
}

// SetOwner stamps owner_user_id on an org, called once the OrgOwner user
// has been created (spec §3 invariant: org owner holds role OrgOwner).
func (m *Manager) SetOwner(ctx context.Context, orgID, userID string) error {
	org, err := m.GetOrg(ctx, orgID)
	if err != nil {
		return err
	}
	org.OwnerUserID = userID
	return m.putOrg(ctx, org)
}

func (m *Manager) putOrg(ctx context.Context, org *Organization) error {
	raw, err := json.Marshal(orgToRow(org))
	if err != nil {
		return fmt.Errorf("marshal org: %w", err)
	}
	if err := m.db.Put(ctx, keyOrgByID+org.OrgID, raw); err != nil {
		return fmt.Errorf("write org: %w", err)
	}
	return nil
}

// GetOrg fetches an org by id.
func (m *Manager) GetOrg(ctx context.Context, orgID string) (*Organization, error) {
	raw, err := m.db.Get(ctx, keyOrgByID+orgID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: org %s", ErrNotFound, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("get org: %w", err)
	}
	var row orgRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("unmarshal org: %w", err)
	}
	return orgFromRow(&row), nil
}

// SetPlan atomically replaces an org's quota limits, preserving usage
// counters (spec §4.3). A downgrade that leaves usage above the new limit
// still succeeds; future check_and_consume calls fail until the window
// rolls over or usage is released (the conservative, immediate-enforcement
// reading of the spec's Open Question on downgrade semantics).
func (m *Manager) SetPlan(ctx context.Context, orgID string, planType config.PlanType) error {
	limits, ok := m.cfg.DefaultPlanQuotas[planType]
	if !ok {
		return apierr.New(apierr.KindInvalidInput, "unknown plan type")
	}
	org, err := m.GetOrg(ctx, orgID)
	if err != nil {
		return err
	}
	org.PlanType = planType
	org.Quotas = cloneInts(limits)
	if err := m.putOrg(ctx, org); err != nil {
		return err
	}
	m.quota.SetLimits(orgID, limits)
	return nil
}

type teamRow struct {
	TeamID      string          `json:"team_id"`
	OrgID       string          `json:"org_id"`
	Name        string          `json:"name"`
	LeadUserID  string          `json:"lead_user_id"`
	Members     []string        `json:"members"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

func teamFromRow(r *teamRow) *Team {
	return &Team{TeamID: r.TeamID, OrgID: r.OrgID, Name: r.Name, LeadUserID: r.LeadUserID, Members: r.Members, Permissions: r.Permissions}
}

func teamToRow(t *Team) teamRow {
	return teamRow{TeamID: t.TeamID, OrgID: t.OrgID, Name: t.Name, LeadUserID: t.LeadUserID, Members: t.Members, Permissions: t.Permissions}
}

// CreateTeam creates a team under orgID. lead_user_id must be a member of
// the team, so it is seeded into Members (spec §3 invariant).
func (m *Manager) CreateTeam(ctx context.Context, teamID, orgID, name, leadUserID string) (*Team, error) {
	team := &Team{
		TeamID: teamID, OrgID: orgID, Name: name, LeadUserID: leadUserID,
		Members: []string{leadUserID}, Permissions: map[string]bool{},
	}
	raw, err := json.Marshal(teamToRow(team))
	if err != nil {
		return nil, fmt.Errorf("marshal team: %w", err)
	}
	if err := m.db.CompareAndSet(ctx, keyTeamByID+teamID, nil, raw); err != nil {
		if errors.Is(err, storage.ErrCASMismatch) {
			return nil, fmt.Errorf("%w: team_id", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("write team: %w", err)
	}
	if err := m.db.Put(ctx, keyTeamOrgIndex+orgID+":"+teamID, []byte(teamID)); err != nil {
		return nil, fmt.Errorf("write team org index: %w", err)
	}
	return team, nil
}

// GetTeam fetches a team by id.
func (m *Manager) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	raw, err := m.db.Get(ctx, keyTeamByID+teamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: team %s", ErrNotFound, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	var row teamRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("unmarshal team: %w", err)
	}
	return teamFromRow(&row), nil
}

// ListTeams returns every team under orgID.
func (m *Manager) ListTeams(ctx context.Context, orgID string) ([]*Team, error) {
	idx, err := m.db.Scan(ctx, keyTeamOrgIndex+orgID+":")
	if err != nil {
		return nil, fmt.Errorf("scan team index: %w", err)
	}
	teams := make([]*Team, 0, len(idx))
	for _, teamIDBytes := range idx {
		t, err := m.GetTeam(ctx, string(teamIDBytes))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, nil
}

func (m *Manager) putTeam(ctx context.Context, team *Team) error {
	raw, err := json.Marshal(teamToRow(team))
	if err != nil {
		return fmt.Errorf("marshal team: %w", err)
	}
	return m.db.Put(ctx, keyTeamByID+team.TeamID, raw)
}

// AddMember adds userID to a team's membership.
func (m *Manager) AddMember(ctx context.Context, teamID, userID string) error {
	team, err := m.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.HasMember(userID) {
		return nil
	}
	team.Members = append(team.Members, userID)
	return m.putTeam(ctx, team)
}

// RemoveMember removes userID from a team's membership. Removing the
// team's lead requires reassigning lead_user_id first (spec §3 invariant):
// attempting to remove the lead without reassignment fails.
func (m *Manager) RemoveMember(ctx context.Context, teamID, userID string) error {
	team, err := m.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.LeadUserID == userID {
		return apierr.New(apierr.KindInvalidInput, "cannot remove team lead without reassigning lead_user_id")
	}
	filtered := team.Members[:0]
	for _, m := range team.Members {
		if m != userID {
			filtered = append(filtered, m)
		}
	}
	team.Members = filtered
	return m.putTeam(ctx, team)
}

// GetTenantContext assembles everything the request shell needs to
// authorize and route a request for userID (spec §4.3, §4.9).
func (m *Manager) GetTenantContext(ctx context.Context, userID string) (*TenantContext, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	org, err := m.GetOrg(ctx, user.OrgID)
	if err != nil {
		return nil, err
	}

	teams := make([]*Team, 0, len(user.TeamIDs))
	for _, teamID := range user.TeamIDs {
		team, err := m.GetTeam(ctx, teamID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}

	roles := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = string(r)
	}

	return &TenantContext{
		Org:         org,
		Teams:       teams,
		Roles:       roles,
		Permissions: permission.EffectivePermissionStrings(user),
		Preferences: user.Preferences,
	}, nil
}

func cloneInts(in map[config.QuotaResource]int) map[config.QuotaResource]int {
	out := make(map[config.QuotaResource]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
