package workflow

import "strings"

// Catalog is the static, process-start table of Templates (spec §4.8).
// Supplementing the distilled spec's two named examples (SecurityHardening,
// CostOptimization), a handful of further operational-runbook templates are
// included so the registry is not a two-entry stub; they follow the same
// shape every template in the catalog follows.
var Catalog = map[string]*Template{
	"SecurityHardening": {
		Type: "SecurityHardening",
		Keywords: []string{"security", "harden", "vulnerability", "cve", "patch"},
		Steps: []Step{
			{AgentName: "vulnerability-scanner", DisplayName: "Scan for vulnerabilities", Required: true},
			{AgentName: "risk-assessor", DisplayName: "Assess risk", Required: true},
			{AgentName: "patch-planner", DisplayName: "Plan remediation", Required: true, ApprovalRequired: true},
			{AgentName: "patch-applier", DisplayName: "Apply remediation", Required: true},
		},
	},
	"CostOptimization": {
		Type: "CostOptimization",
		Keywords: []string{"cost", "spend", "billing", "optimize", "savings"},
		Steps: []Step{
			{AgentName: "cost-analyzer", DisplayName: "Analyze spend", Required: true},
			{AgentName: "rightsizing-advisor", DisplayName: "Identify rightsizing opportunities", Required: true},
			{AgentName: "savings-reporter", DisplayName: "Report projected savings", Required: false},
		},
	},
	"IncidentResponse": {
		Type: "IncidentResponse",
		Keywords: []string{"incident", "outage", "down", "pager", "sev1", "sev2"},
		Steps: []Step{
			{AgentName: "triage-agent", DisplayName: "Triage incident", Required: true},
			{AgentName: "mitigation-planner", DisplayName: "Plan mitigation", Required: true, ApprovalRequired: true},
			{AgentName: "mitigation-executor", DisplayName: "Execute mitigation", Required: true},
			{AgentName: "postmortem-drafter", DisplayName: "Draft postmortem", Required: false},
		},
	},
	"OnboardingSetup": {
		Type: "OnboardingSetup",
		Keywords: []string{"onboard", "setup", "getting started", "new team"},
		Steps: []Step{
			{AgentName: "workspace-provisioner", DisplayName: "Provision workspace", Required: true},
			{AgentName: "integration-configurer", DisplayName: "Configure integrations", Required: false},
			{AgentName: "welcome-notifier", DisplayName: "Send welcome summary", Required: false},
		},
	},
}

// DetectIntent scans message for any Catalog template's keyword set and
// returns the first matching template type, or "" if none match (spec
// §4.8: "a pure lookup; it is not an agent").
func DetectIntent(message string) string {
	lower := strings.ToLower(message)
	for _, templateType := range catalogOrder {
		tmpl := Catalog[templateType]
		for _, kw := range tmpl.Keywords {
			if strings.Contains(lower, kw) {
				return templateType
			}
		}
	}
	return ""
}

// catalogOrder fixes iteration order for DetectIntent so "first match" is
// deterministic across runs, independent of Go's randomized map iteration.
var catalogOrder = []string{"SecurityHardening", "CostOptimization", "IncidentResponse", "OnboardingSetup"}
