package config

import "time"

// PlanType enumerates the billing tiers an Organization can be on.
type PlanType string

const (
	PlanStarter      PlanType = "starter"
	PlanProfessional PlanType = "professional"
	PlanEnterprise   PlanType = "enterprise"
	PlanCustom       PlanType = "custom"
)

// QuotaResource enumerates the countable dimensions the quota engine tracks.
type QuotaResource string

const (
	ResourceAgentsPerMonth       QuotaResource = "agents_per_month"
	ResourceWorkflowsPerMonth    QuotaResource = "workflows_per_month"
	ResourceStorageGB            QuotaResource = "storage_gb"
	ResourceAPICallsPerHour      QuotaResource = "api_calls_per_hour"
	ResourceTeamMembers          QuotaResource = "team_members"
	ResourceConcurrentWorkflows  QuotaResource = "concurrent_workflows"
)

// WindowKind distinguishes the two accounting strategies the quota engine
// supports for a resource.
type WindowKind string

const (
	// WindowPointInTime resources are a live count: consume increments,
	// release decrements.
	WindowPointInTime WindowKind = "point_in_time"
	// WindowSliding resources are counted over a trailing time window,
	// purged lazily on access.
	WindowSliding WindowKind = "sliding"
)

// ResourceWindows declares which accounting strategy applies to each
// resource; it is fixed platform-wide, not per-plan.
var ResourceWindows = map[QuotaResource]WindowKind{
	ResourceAgentsPerMonth:      WindowSliding,
	ResourceWorkflowsPerMonth:   WindowSliding,
	ResourceStorageGB:           WindowPointInTime,
	ResourceAPICallsPerHour:     WindowSliding,
	ResourceTeamMembers:         WindowPointInTime,
	ResourceConcurrentWorkflows: WindowPointInTime,
}

// ResourceWindowDuration returns the trailing window for sliding resources.
// Point-in-time resources have no time dimension and return 0.
func ResourceWindowDuration(r QuotaResource) time.Duration {
	switch r {
	case ResourceAPICallsPerHour:
		return time.Hour
	case ResourceAgentsPerMonth, ResourceWorkflowsPerMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// PasswordPolicy governs Auth.register's password validation (§4.2).
type PasswordPolicy struct {
	MinLength        int      `yaml:"min_length"`
	RequireUpper     bool     `yaml:"require_upper"`
	RequireLower     bool     `yaml:"require_lower"`
	RequireDigit     bool     `yaml:"require_digit"`
	RequireSpecial   bool     `yaml:"require_special"`
	DenyList         []string `yaml:"deny_list"`
}

// LockoutConfig governs the Credential Attempt Log's state machine (§4.2).
type LockoutConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
}

// RolloutRule is an overlay rule for feature-flag evaluation (§4.10).
type RolloutRule struct {
	Feature    string   `yaml:"feature"`
	Percentage int      `yaml:"percentage"`
	TargetPlan PlanType `yaml:"target_plan,omitempty"`
}

// TokenPolicy governs refresh-token rotation (Open Question in spec.md §9).
type TokenPolicy struct {
	RotateRefreshTokens bool `yaml:"rotate_refresh_tokens"`
}
