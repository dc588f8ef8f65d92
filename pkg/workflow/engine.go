package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreforge/agentcore/pkg/agent"
	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/quota"
	"github.com/coreforge/agentcore/pkg/storage"
	"github.com/coreforge/agentcore/pkg/tenancy"
)

// defaultStepTimeout bounds a step whose template entry leaves Timeout
// unset.
const defaultStepTimeout = 30 * time.Second

// Engine is the Workflow Engine (spec §4.8). It serializes state
// transitions per workflow_id, never holds a lock across an agent
// invocation, and persists instance state after every transition so a
// restart can resume Running instances.
type Engine struct {
	instances  *instanceStore
	quota      *quota.Engine
	tenants    *tenancy.Manager
	dispatcher *agent.Dispatcher

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wires a Workflow Engine.
func New(db storage.Store, quotaEngine *quota.Engine, tenants *tenancy.Manager, dispatcher *agent.Dispatcher) *Engine {
	return &Engine{
		instances:  newInstanceStore(db),
		quota:      quotaEngine,
		tenants:    tenants,
		dispatcher: dispatcher,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(workflowID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[workflowID] = l
	}
	return l
}

func (e *Engine) orgLimits(ctx context.Context, orgID string) (map[config.QuotaResource]int, error) {
	org, err := e.tenants.GetOrg(ctx, orgID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to resolve org for quota check", err)
	}
	return org.Quotas, nil
}

// Start implements start(type, user_id, initial_message, initial_context)
// (spec §4.8 point 1).
func (e *Engine) Start(ctx context.Context, templateType, userID, orgID, initialMessage string, initialContext map[string]any) (*Instance, error) {
	tmpl, ok := Catalog[templateType]
	if !ok {
		return nil, apierr.New(apierr.KindInvalidInput, "unknown workflow template: "+templateType)
	}

	limits, err := e.orgLimits(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if res, err := e.quota.CheckAndConsume(orgID, config.ResourceWorkflowsPerMonth, limits, 1, now); err != nil {
		return nil, err
	} else if !res.Admitted {
		return nil, apierr.New(apierr.KindQuotaExceeded, "workflows_per_month quota exceeded")
	}

	if res, err := e.quota.CheckAndConsume(orgID, config.ResourceConcurrentWorkflows, limits, 1, now); err != nil {
		return nil, err
	} else if !res.Admitted {
		return nil, apierr.New(apierr.KindQuotaExceeded, "concurrent_workflows quota exceeded")
	}

	inst := &Instance{
		WorkflowID:       uuid.New().String(),
		Type:             templateType,
		UserID:           userID,
		OrgID:            orgID,
		Status:           StatusRunning,
		CurrentStepIndex: 0,
		InitialMessage:   initialMessage,
		InitialContext:   initialContext,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	lock := e.lockFor(inst.WorkflowID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.instances.put(ctx, inst); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to persist workflow instance", err)
	}

	return e.driveStep(ctx, tmpl, inst, false)
}

// load fetches an instance and enforces tenant isolation.
func (e *Engine) load(ctx context.Context, workflowID, orgID string) (*Instance, *Template, error) {
	inst, err := e.instances.get(ctx, workflowID)
	if err != nil {
		return nil, nil, apierr.New(apierr.KindWorkflowNotFound, "workflow not found")
	}
	if inst.OrgID != orgID {
		return nil, nil, apierr.New(apierr.KindForbidden, "workflow belongs to a different organization")
	}
	tmpl, ok := Catalog[inst.Type]
	if !ok {
		return nil, nil, apierr.Wrap(apierr.KindInternal, "workflow references unknown template", nil)
	}
	return inst, tmpl, nil
}

// Continue implements continue(workflow_id, message?) (spec §4.8).
func (e *Engine) Continue(ctx context.Context, workflowID, orgID, message string) (*StepOutcome, error) {
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	inst, tmpl, err := e.load(ctx, workflowID, orgID)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case StatusRunning, StatusPaused:
		inst.Status = StatusRunning
	default:
		return nil, apierr.New(apierr.KindIllegalTransition, fmt.Sprintf("cannot continue a workflow in status %s", inst.Status))
	}

	if message != "" {
		inst.InitialMessage = message
	}

	instance, err := e.driveStep(ctx, tmpl, inst, false)
	if err != nil {
		return nil, err
	}
	return e.outcomeFor(tmpl, instance), nil
}

// Approve implements approve(workflow_id, decision) (spec §4.8 point 4).
func (e *Engine) Approve(ctx context.Context, workflowID, orgID string, decision Decision) (*Instance, error) {
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	inst, tmpl, err := e.load(ctx, workflowID, orgID)
	if err != nil {
		return nil, err
	}
	if inst.Status != StatusWaitingApproval {
		return nil, apierr.New(apierr.KindIllegalTransition, "workflow is not awaiting approval")
	}

	switch decision {
	case DecisionApprove:
		inst.Status = StatusRunning
		instance, err := e.driveStep(ctx, tmpl, inst, true)
		if err != nil {
			return nil, err
		}
		return instance, nil
	case DecisionReject, DecisionCancel:
		return e.releaseAndTerminate(ctx, inst, StatusCancelled)
	case DecisionPause:
		inst.Status = StatusPaused
		if err := e.persist(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	default:
		return nil, apierr.New(apierr.KindInvalidInput, "unknown decision: "+string(decision))
	}
}

// Cancel implements cancel(workflow_id). Cancelling an already-Cancelled
// instance is a no-op success (spec testable property 7).
func (e *Engine) Cancel(ctx context.Context, workflowID, orgID string) (*Instance, error) {
	lock := e.lockFor(workflowID)
	lock.Lock()
	defer lock.Unlock()

	inst, _, err := e.load(ctx, workflowID, orgID)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case StatusCancelled:
		return inst, nil
	case StatusCompleted, StatusFailed:
		return nil, apierr.New(apierr.KindIllegalTransition, fmt.Sprintf("cannot cancel a workflow in status %s", inst.Status))
	default:
		return e.releaseAndTerminate(ctx, inst, StatusCancelled)
	}
}

// Status implements status(workflow_id) (spec §4.8).
func (e *Engine) Status(ctx context.Context, workflowID, orgID string) (*Instance, error) {
	inst, _, err := e.load(ctx, workflowID, orgID)
	return inst, err
}

func (e *Engine) releaseAndTerminate(ctx context.Context, inst *Instance, status Status) (*Instance, error) {
	limits, err := e.orgLimits(ctx, inst.OrgID)
	if err == nil {
		e.quota.Release(inst.OrgID, config.ResourceConcurrentWorkflows, limits, 1)
	}
	inst.Status = status
	if err := e.persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *Engine) persist(ctx context.Context, inst *Instance) error {
	inst.UpdatedAt = time.Now()
	if err := e.instances.put(ctx, inst); err != nil {
		return apierr.Wrap(apierr.KindInternal, "failed to persist workflow instance", err)
	}
	return nil
}

// driveStep executes exactly one step of inst: if the step requires
// approval and approved is false, it transitions to WaitingApproval and
// returns without invoking any agent (spec §4.8 point 2). Otherwise it
// composes the context-aware input, invokes the agent, and records the
// outcome.
func (e *Engine) driveStep(ctx context.Context, tmpl *Template, inst *Instance, approved bool) (*Instance, error) {
	idx := inst.CurrentStepIndex
	if idx >= len(tmpl.Steps) {
		inst.Status = StatusCompleted
		if err := e.persist(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}

	step := tmpl.Steps[idx]
	if step.ApprovalRequired && !approved {
		inst.Status = StatusWaitingApproval
		if err := e.persist(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}

	input := composeInput(inst, step)
	timeout := step.Timeout
	if timeout == 0 {
		timeout = defaultStepTimeout
	}
	deadline := time.Now().Add(timeout)

	result, invokeErr := e.dispatcher.Invoke(ctx, step.AgentName, input, deadline)

	executedAt := time.Now()
	if invokeErr == nil {
		inst.Results = append(inst.Results, StepResult{
			StepIndex: idx, StepName: step.DisplayName, AgentName: step.AgentName,
			AgentResponse: resultToMap(result), ExecutedAt: executedAt, Status: "completed",
		})
		inst.CurrentStepIndex++

		if inst.CurrentStepIndex == len(tmpl.Steps) {
			return e.releaseAndTerminate(ctx, inst, StatusCompleted)
		}
		if err := e.persist(ctx, inst); err != nil {
			return nil, err
		}
		return inst, nil
	}

	// Agent failure.
	inst.Results = append(inst.Results, StepResult{
		StepIndex: idx, StepName: step.DisplayName, AgentName: step.AgentName,
		ExecutedAt: executedAt, Status: "failed", FailureReason: invokeErr.Error(),
	})

	inst.CurrentStepIndex++

	if step.Required {
		return e.releaseAndTerminate(ctx, inst, StatusFailed)
	}

	if inst.CurrentStepIndex == len(tmpl.Steps) {
		return e.releaseAndTerminate(ctx, inst, StatusCompleted)
	}
	if err := e.persist(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// composeInput builds the context-aware step input: initial_message, the
// last two step results (names and a short status), and the current
// step's display name (spec §4.8 point 2).
func composeInput(inst *Instance, step Step) map[string]any {
	recent := inst.Results
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	recentSummaries := make([]map[string]any, len(recent))
	for i, r := range recent {
		recentSummaries[i] = map[string]any{"step_name": r.StepName, "status": r.Status}
	}

	return map[string]any{
		"initial_message":    inst.InitialMessage,
		"recent_results":     recentSummaries,
		"current_step_name":  step.DisplayName,
		"initial_context":    inst.InitialContext,
	}
}

func resultToMap(r *agent.Result) map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"message": r.Message, "agent_name": r.AgentName, "intent": r.Intent,
		"confidence": r.Confidence, "real_execution": r.RealExecution, "data": r.Data,
	}
}

// outcomeFor builds the augmented continue() envelope (spec §4.8 point 3).
func (e *Engine) outcomeFor(tmpl *Template, inst *Instance) *StepOutcome {
	var lastResult *StepResult
	if len(inst.Results) > 0 {
		lastResult = &inst.Results[len(inst.Results)-1]
	}

	total := len(tmpl.Steps)
	progress := 0
	if total > 0 {
		progress = inst.CurrentStepIndex * 100 / total
	}

	var stepName, nextStepName string
	if lastResult != nil {
		stepName = lastResult.StepName
	}
	if inst.CurrentStepIndex < total {
		nextStepName = tmpl.Steps[inst.CurrentStepIndex].DisplayName
	}

	actions := []string{"status"}
	switch inst.Status {
	case StatusRunning:
		actions = append(actions, "continue", "pause")
	case StatusWaitingApproval:
		actions = append(actions, "approve")
	}

	return &StepOutcome{
		Instance: inst,
		Result:   lastResult,
		Context: &WorkflowContext{
			WorkflowID:       inst.WorkflowID,
			Step:             fmt.Sprintf("%d/%d", inst.CurrentStepIndex, total),
			StepName:         stepName,
			NextStepName:     nextStepName,
			ProgressPercent:  progress,
			SuggestedActions: actions,
		},
	}
}

// Resume implements the restart half of Recovery (spec §4.8): it scans
// every persisted instance and returns those left in Running, which the
// caller (cmd/platformd) logs; the next Continue call for each naturally
// picks up from current_step_index since that is exactly what was
// persisted. WaitingApproval instances are left untouched until a caller
// acts, per spec.
func (e *Engine) Resume(ctx context.Context) ([]*Instance, error) {
	all, err := e.instances.listAll(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to scan workflow instances during recovery", err)
	}
	var running []*Instance
	for _, inst := range all {
		if inst.Status == StatusRunning {
			running = append(running, inst)
		}
	}
	return running, nil
}
