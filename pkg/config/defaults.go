package config

import "time"

// defaultPlanQuotas returns the built-in plan → quota-limit bindings; values
// set in the config file's default_plan_quotas take precedence. Mirrors the teacher's
// GetBuiltinConfig pattern of shipping sane defaults that user YAML merges
// over.
func defaultPlanQuotas() map[PlanType]map[QuotaResource]int {
	return map[PlanType]map[QuotaResource]int{
		PlanStarter: {
			ResourceAgentsPerMonth:      500,
			ResourceWorkflowsPerMonth:   50,
			ResourceStorageGB:           5,
			ResourceAPICallsPerHour:     100,
			ResourceTeamMembers:         5,
			ResourceConcurrentWorkflows: 2,
		},
		PlanProfessional: {
			ResourceAgentsPerMonth:      5000,
			ResourceWorkflowsPerMonth:   500,
			ResourceStorageGB:           50,
			ResourceAPICallsPerHour:     1000,
			ResourceTeamMembers:         25,
			ResourceConcurrentWorkflows: 10,
		},
		PlanEnterprise: {
			ResourceAgentsPerMonth:      50000,
			ResourceWorkflowsPerMonth:   5000,
			ResourceStorageGB:           500,
			ResourceAPICallsPerHour:     10000,
			ResourceTeamMembers:         250,
			ResourceConcurrentWorkflows: 50,
		},
		// PlanCustom carries the Enterprise numbers. The Tenancy Manager
		// copies these limits as they are; org.settings is not consulted.
		PlanCustom: {
			ResourceAgentsPerMonth:      50000,
			ResourceWorkflowsPerMonth:   5000,
			ResourceStorageGB:           500,
			ResourceAPICallsPerHour:     10000,
			ResourceTeamMembers:         250,
			ResourceConcurrentWorkflows: 50,
		},
	}
}

func defaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		DenyList:       []string{"password", "12345678", "qwertyui", "letmein1"},
	}
}

func defaultLockout() LockoutConfig {
	return LockoutConfig{MaxFailures: 5, Window: 15 * time.Minute}
}
