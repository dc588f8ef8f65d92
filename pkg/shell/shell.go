package shell

import (
	"context"
	"time"

	"github.com/coreforge/agentcore/pkg/agent"
	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/auth"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/identity"
	"github.com/coreforge/agentcore/pkg/permission"
	"github.com/coreforge/agentcore/pkg/quota"
	"github.com/coreforge/agentcore/pkg/session"
	"github.com/coreforge/agentcore/pkg/tenancy"
	"github.com/coreforge/agentcore/pkg/workflow"
)

// Shell is the Request Shell (spec §4.9): the single path every routed
// request (chat message or workflow call) passes through. It owns
// authorization and quota enforcement so individual routes never touch
// the Permission Evaluator or Quota Engine directly.
type Shell struct {
	auth       *auth.Service
	tenants    *tenancy.Manager
	quota      *quota.Engine
	users      *identity.Store
	sessions   *session.Store
	dispatcher *agent.Dispatcher
	workflows  *workflow.Engine
}

// New wires a Shell over the platform's core components.
func New(
	authSvc *auth.Service,
	tenants *tenancy.Manager,
	quotaEngine *quota.Engine,
	users *identity.Store,
	sessions *session.Store,
	dispatcher *agent.Dispatcher,
	workflows *workflow.Engine,
) *Shell {
	return &Shell{
		auth:       authSvc,
		tenants:    tenants,
		quota:      quotaEngine,
		users:      users,
		sessions:   sessions,
		dispatcher: dispatcher,
		workflows:  workflows,
	}
}

// AuthContext is what the shell resolves from a bearer token before
// routing: the caller's identity, tenant context, and quota limits, so a
// handler never has to re-derive them.
type AuthContext struct {
	Claims  *auth.Claims
	User    *identity.User
	Tenant  *tenancy.TenantContext
	OrgID   string
	UserID  string
	Limits  map[config.QuotaResource]int
}

// Authenticate implements the shell's first three steps shared by every
// authenticated route: verify(access_token), then resolve tenant context,
// then load the caller's own record for permission checks (spec §4.9
// steps 1-2).
func (s *Shell) Authenticate(ctx context.Context, accessToken string) (*AuthContext, error) {
	claims, err := s.auth.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidToken, "token references an unknown user")
	}
	if !user.Active {
		return nil, apierr.New(apierr.KindForbidden, "account is deactivated")
	}
	tenant, err := s.tenants.GetTenantContext(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthContext{
		Claims: claims,
		User:   user,
		Tenant: tenant,
		OrgID:  claims.OrgID,
		UserID: claims.UserID,
		Limits: tenant.Org.Quotas,
	}, nil
}

// Authorize runs a permission check followed by a quota charge, so a
// permission denial never consumes quota (spec §4.9 step 3-4).
func (s *Shell) Authorize(ac *AuthContext, resource config.QuotaResource, kind permission.ResourceKind, action permission.Action) error {
	decision := permission.Allowed(ac.User, kind, action)
	if !decision.Allow {
		return apierr.New(apierr.KindForbidden, decision.Reason)
	}

	res, err := s.quota.CheckAndConsume(ac.OrgID, resource, ac.Limits, 1, time.Now())
	if err != nil {
		return err
	}
	if !res.Admitted {
		return apierr.New(apierr.KindQuotaExceeded, string(resource)+" quota exceeded")
	}
	return nil
}

// ChatRequest is the shell's routed chat() call (spec §4.9 / §6.2 /chat).
type ChatRequest struct {
	SessionID string
	Message   string
}

// ChatResult is what a routed chat message returns once it has been
// appended to session history alongside the produced response.
type ChatResult struct {
	Session *session.Session
	Agent   *agent.Result
}

// Chat implements the full routed path for a free-text message: session
// lookup/creation, recording the inbound message, dispatching to the
// agent named by Intent detection (left to the caller, since intent
// detection belongs to the caller's routing choice, not the shell), and
// recording the response (spec §4.9 steps 5-7).
func (s *Shell) Chat(ctx context.Context, ac *AuthContext, req ChatRequest, agentName string) (*ChatResult, error) {
	sess, err := s.sessions.GetOrCreate(ac.UserID, ac.OrgID, req.SessionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Append(sess.SessionID, ac.OrgID, session.Entry{
		Role:      "user",
		Content:   req.Message,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, err
	}

	input := map[string]any{"message": req.Message, "context": sess.Context}
	result, invokeErr := s.dispatcher.Invoke(ctx, agentName, input, time.Time{})
	if invokeErr != nil {
		// Still record the failure as a session entry so history reflects
		// what the user saw, matching the spec's append-on-every-turn
		// contract rather than silently dropping failed turns.
		_, _ = s.sessions.Append(sess.SessionID, ac.OrgID, session.Entry{
			Role:      "assistant",
			Content:   invokeErr.Error(),
			Timestamp: time.Now(),
		})
		return nil, invokeErr
	}

	updated, err := s.sessions.Append(sess.SessionID, ac.OrgID, session.Entry{
		Role:      "assistant",
		Content:   result.Message,
		AgentName: result.AgentName,
		Intent:    result.Intent,
		Timestamp: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return &ChatResult{Session: updated, Agent: result}, nil
}

// History implements the shell's /chat/history route.
func (s *Shell) History(ac *AuthContext, sessionID string, limit int) ([]session.Entry, error) {
	return s.sessions.History(sessionID, ac.OrgID, limit)
}

// ClearHistory implements the shell's DELETE /chat/history route.
func (s *Shell) ClearHistory(ac *AuthContext, sessionID string) error {
	return s.sessions.Clear(sessionID, ac.OrgID)
}

// StartWorkflow routes a workflow start() call through the shell.
func (s *Shell) StartWorkflow(ctx context.Context, ac *AuthContext, templateType, initialMessage string, initialContext map[string]any) (*workflow.Instance, error) {
	return s.workflows.Start(ctx, templateType, ac.UserID, ac.OrgID, initialMessage, initialContext)
}

// ContinueWorkflow routes a workflow continue() call through the shell.
func (s *Shell) ContinueWorkflow(ctx context.Context, ac *AuthContext, workflowID, message string) (*workflow.StepOutcome, error) {
	return s.workflows.Continue(ctx, workflowID, ac.OrgID, message)
}

// ApproveWorkflow routes a workflow approve() call through the shell.
func (s *Shell) ApproveWorkflow(ctx context.Context, ac *AuthContext, workflowID string, decision workflow.Decision) (*workflow.Instance, error) {
	return s.workflows.Approve(ctx, workflowID, ac.OrgID, decision)
}

// WorkflowStatus routes a workflow status() call through the shell.
func (s *Shell) WorkflowStatus(ctx context.Context, ac *AuthContext, workflowID string) (*workflow.Instance, error) {
	return s.workflows.Status(ctx, workflowID, ac.OrgID)
}

// CancelWorkflow routes a workflow cancel() call through the shell.
func (s *Shell) CancelWorkflow(ctx context.Context, ac *AuthContext, workflowID string) (*workflow.Instance, error) {
	return s.workflows.Cancel(ctx, workflowID, ac.OrgID)
}

// AgentCatalog exposes the Agent Registry's descriptor table for the
// /agents/status route.
func (s *Shell) AgentCatalog() []agent.Descriptor {
	return s.dispatcher.Descriptors()
}
