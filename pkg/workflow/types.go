// Package workflow implements the Workflow Engine (spec §4.8): static
// Templates expanded into Instances driven through a strict state machine,
// with context-aware step input composition, approval gates, and crash
// recovery.
package workflow

import "time"

// Status is one node of the Instance state machine (spec §4.8).
type Status string

const (
	StatusPending         Status = "Pending"
	StatusRunning         Status = "Running"
	StatusWaitingApproval Status = "WaitingApproval"
	StatusPaused          Status = "Paused"
	StatusFailed          Status = "Failed"
	StatusCancelled       Status = "Cancelled"
	StatusCompleted       Status = "Completed"
)

// Decision is one of the outcomes approve(workflow_id, decision) accepts.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionPause   Decision = "pause"
	DecisionCancel  Decision = "cancel"
)

// Step is one static entry in a Template's ordered step list.
type Step struct {
	AgentName        string
	DisplayName      string
	Required         bool
	ApprovalRequired bool
	Timeout          time.Duration
}

// Template is a named, ordered list of steps, declared statically at
// process start (spec §4.8).
type Template struct {
	Type     string
	Steps    []Step
	Keywords []string // intent-detection keyword set (spec §4.8)
}

// StepResult is one executed (or attempted) step's authoritative record
// (spec's Non-goal consolidation: workflow results are authoritative,
// session history is conversational only).
type StepResult struct {
	StepIndex    int            `json:"step_index"`
	StepName     string         `json:"step_name"`
	AgentName    string         `json:"agent_name"`
	AgentResponse map[string]any `json:"agent_response,omitempty"`
	ExecutedAt   time.Time      `json:"executed_at"`
	Status       string         `json:"status"` // completed | failed
	FailureReason string        `json:"failure_reason,omitempty"`
}

// Instance is a live execution of a Template (spec §3).
type Instance struct {
	WorkflowID       string       `json:"workflow_id"`
	Type             string       `json:"type"`
	UserID           string       `json:"user_id"`
	OrgID            string       `json:"org_id"`
	Status           Status       `json:"status"`
	CurrentStepIndex int          `json:"current_step_index"`
	InitialMessage   string       `json:"initial_message"`
	InitialContext   map[string]any `json:"initial_context,omitempty"`
	Results          []StepResult `json:"results"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// WorkflowContext is the augmented envelope continue() returns after each
// successful step (spec §4.8 point 3).
type WorkflowContext struct {
	WorkflowID       string `json:"workflow_id"`
	Step             string `json:"step"` // "k/N"
	StepName         string `json:"step_name"`
	NextStepName     string `json:"next_step_name,omitempty"`
	ProgressPercent  int    `json:"progress_percent"`
	SuggestedActions []string `json:"suggested_actions"`
}

// StepOutcome is what continue/approve return to the caller.
type StepOutcome struct {
	Instance *Instance
	Result   *StepResult
	Context  *WorkflowContext
}
