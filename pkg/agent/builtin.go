package agent

import (
	"context"
	"fmt"
	"time"
)

// defaultTimeout bounds every builtin agent.
const defaultTimeout = 15 * time.Second

// stubHandler returns a Handler that echoes a canned, deterministic
// response. It stands in for the real model-backed agents the spec's
// Non-goals exclude ("no LLM/model integration is implemented"), while
// still exercising the full Invocation Interface: schema validation,
// timeout, breaker, retry, and RealExecution=false signaling that the
// response is synthetic (spec §6.4).
func stubHandler(name, message string) Handler {
	return func(ctx context.Context, input map[string]any) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return &Result{
			Message:       message,
			AgentName:     name,
			Confidence:    0.5,
			RealExecution: false,
			Data: map[string]any{
				"summary_fields": map[string]any{"agent": name},
				"input_echo":     input,
			},
		}, nil
	}
}

// builtinDescriptor is the (name, display name, message) triple used to
// register the default agent roster the workflow catalog's templates
// reference.
type builtinDescriptor struct {
	name    string
	display string
	message string
}

// defaultRoster lists every agent the built-in workflow templates (spec
// §4.8 Catalog) dispatch to, plus a general-purpose assistant for routed
// chat messages that don't match a workflow template.
var defaultRoster = []builtinDescriptor{
	{"general-assistant", "General Assistant", "Here's what I found for your request."},
	{"vulnerability-scanner", "Vulnerability Scanner", "Scan complete: no critical findings outstanding."},
	{"risk-assessor", "Risk Assessor", "Risk assessment complete: moderate severity."},
	{"patch-planner", "Patch Planner", "Remediation plan drafted, awaiting approval."},
	{"patch-applier", "Patch Applier", "Remediation applied successfully."},
	{"cost-analyzer", "Cost Analyzer", "Spend analysis complete."},
	{"rightsizing-advisor", "Rightsizing Advisor", "Rightsizing opportunities identified."},
	{"savings-reporter", "Savings Reporter", "Projected savings report generated."},
	{"triage-agent", "Triage Agent", "Incident triaged and classified."},
	{"mitigation-planner", "Mitigation Planner", "Mitigation plan drafted, awaiting approval."},
	{"mitigation-executor", "Mitigation Executor", "Mitigation executed."},
	{"postmortem-drafter", "Postmortem Drafter", "Postmortem draft generated."},
	{"workspace-provisioner", "Workspace Provisioner", "Workspace provisioned."},
	{"integration-configurer", "Integration Configurer", "Integrations configured."},
	{"welcome-notifier", "Welcome Notifier", "Welcome summary sent."},
}

// RegisterDefaults registers the default agent roster against r, for
// cmd/platformd's startup wiring.
func RegisterDefaults(r *Registry) {
	for _, d := range defaultRoster {
		r.Register(Descriptor{
			Name:        d.name,
			DisplayName: d.display,
			InputSchema: InputSchema{
				"message": FieldSpec{Kind: FieldString, Required: false},
			},
			Timeout: defaultTimeout,
		}, stubHandler(d.name, fmt.Sprintf("[%s] %s", d.display, d.message)))
	}
}
