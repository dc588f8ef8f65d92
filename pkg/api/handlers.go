package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/permission"
	"github.com/coreforge/agentcore/pkg/shell"
	"github.com/coreforge/agentcore/pkg/workflow"
)

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// handleRegister implements POST /auth/register.
func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.auth.Register(c.Request.Context(), req.Email, req.Username, req.Password, req.FullName, req.OrgName)
	if err != nil {
		respondErr(c, err, "", "")
		return
	}
	respondOKAnonymous(c, user.OrgID, user.UserID, gin.H{"user_id": user.UserID, "org_id": user.OrgID})
}

// handleLogin implements POST /auth/login.
func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := s.auth.Login(c.Request.Context(), req.UsernameOrEmail, req.Password, c.ClientIP())
	if err != nil {
		respondErr(c, err, "", "")
		return
	}
	respondOKAnonymous(c, result.User.OrgID, result.User.UserID, gin.H{
		"access_token":  result.Access.Token,
		"refresh_token": result.Refresh.Token,
		"user_id":       result.User.UserID,
		"org_id":        result.User.OrgID,
	})
}

// handleRefresh implements POST /auth/refresh.
func (s *Server) handleRefresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	access, err := s.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondErr(c, err, "", "")
		return
	}
	respondOKAnonymous(c, access.Claims.OrgID, access.Claims.UserID, gin.H{"access_token": access.Token})
}

// handleLogout implements POST /auth/logout.
func (s *Server) handleLogout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		respondErr(c, apierr.New(apierr.KindInvalidToken, "missing bearer token"), "", "")
		return
	}
	if err := s.auth.Logout(c.Request.Context(), token); err != nil {
		respondErr(c, err, "", "")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleChangePassword implements POST /auth/change-password.
func (s *Server) handleChangePassword(c *gin.Context) {
	ac := authContextFrom(c)
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), ac.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleProfile implements GET /auth/profile.
func (s *Server) handleProfile(c *gin.Context) {
	ac := authContextFrom(c)
	respondOK(c, ac, gin.H{
		"user_id":     ac.User.UserID,
		"email":       ac.User.Email,
		"username":    ac.User.Username,
		"full_name":   ac.User.FullName,
		"roles":       ac.Tenant.Roles,
		"permissions": ac.Tenant.Permissions,
		"org":         ac.Tenant.Org,
		"teams":       ac.Tenant.Teams,
	})
}

// handleChat implements POST /chat: the shell's routed chat() call (spec
// §4.9, §6.2).
func (s *Server) handleChat(c *gin.Context) {
	ac := authContextFrom(c)
	var req ChatRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.shell.Authorize(ac, config.ResourceAPICallsPerHour, permission.ResourceAgents, permission.ActionExecute); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}

	result, err := s.shell.Chat(c.Request.Context(), ac, shell.ChatRequest{SessionID: req.SessionID, Message: req.Message}, req.AgentName)
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, gin.H{
		"session_id": result.Session.SessionID,
		"response":   result.Agent,
		"context":    result.Session.Context,
	})
}

// handleChatHistory implements GET /chat/history.
func (s *Server) handleChatHistory(c *gin.Context) {
	ac := authContextFrom(c)
	sessionID := c.Query("session_id")
	limit, _ := strconv.Atoi(c.Query("limit"))

	history, err := s.shell.History(ac, sessionID, limit)
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, gin.H{"history": history})
}

// handleClearChatHistory implements DELETE /chat/history.
func (s *Server) handleClearChatHistory(c *gin.Context) {
	ac := authContextFrom(c)
	sessionID := c.Query("session_id")
	if err := s.shell.ClearHistory(ac, sessionID); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleStartWorkflow implements POST /workflow/start.
func (s *Server) handleStartWorkflow(c *gin.Context) {
	ac := authContextFrom(c)
	var req StartWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := s.shell.Authorize(ac, config.ResourceWorkflowsPerMonth, permission.ResourceWorkflows, permission.ActionExecute); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	inst, err := s.shell.StartWorkflow(c.Request.Context(), ac, req.Type, req.InitialMessage, req.InitialContext)
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, inst)
}

// handleContinueWorkflow implements POST /workflow/:id/continue.
func (s *Server) handleContinueWorkflow(c *gin.Context) {
	ac := authContextFrom(c)
	var req ContinueWorkflowRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	outcome, err := s.shell.ContinueWorkflow(c.Request.Context(), ac, c.Param("id"), req.Message)
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, outcome)
}

// handleApproveWorkflow implements POST /workflow/:id/approve.
func (s *Server) handleApproveWorkflow(c *gin.Context) {
	ac := authContextFrom(c)
	var req ApproveWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}
	decision := workflow.Decision(req.Decision)
	if err := s.shell.Authorize(ac, config.ResourceAPICallsPerHour, permission.ResourceWorkflows, permission.ActionApprove); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	inst, err := s.shell.ApproveWorkflow(c.Request.Context(), ac, c.Param("id"), decision)
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, inst)
}

// handleWorkflowStatus implements GET /workflow/:id.
func (s *Server) handleWorkflowStatus(c *gin.Context) {
	ac := authContextFrom(c)
	inst, err := s.shell.WorkflowStatus(c.Request.Context(), ac, c.Param("id"))
	if err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	respondOK(c, ac, inst)
}

// handleAgentsStatus implements GET /agents/status.
func (s *Server) handleAgentsStatus(c *gin.Context) {
	ac := authContextFrom(c)
	respondOK(c, ac, gin.H{"agents": s.shell.AgentCatalog()})
}

// handleGetFeatures implements GET /features/:org_id.
func (s *Server) handleGetFeatures(c *gin.Context) {
	ac := authContextFrom(c)
	orgID := c.Param("org_id")
	if orgID != ac.OrgID {
		respondErr(c, apierr.New(apierr.KindForbidden, "cannot view another organization's feature flags"), ac.OrgID, ac.UserID)
		return
	}

	flags := make(gin.H)
	for _, rule := range s.cfg.RolloutRules() {
		flags[rule.Feature] = s.features.Enabled(orgID, rule.Feature, ac.Tenant.Org.PlanType)
	}

	onboarding, err := s.onboarding.Get(c.Request.Context(), orgID)
	if err != nil {
		respondOK(c, ac, gin.H{"features": flags})
		return
	}
	respondOK(c, ac, gin.H{"features": flags, "onboarding": onboarding, "onboarding_progress": onboarding.Progress()})
}

// handleAssignFeature implements POST /features/:org_id/:feature.
func (s *Server) handleAssignFeature(c *gin.Context) {
	ac := authContextFrom(c)
	if err := s.shell.Authorize(ac, config.ResourceAPICallsPerHour, permission.ResourceFeatureFlags, permission.ActionUpdate); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	var req AssignFeatureRequest
	if !bindJSON(c, &req) {
		return
	}
	s.features.Assign(c.Param("org_id"), c.Param("feature"), req.Enabled)
	respondOK(c, ac, gin.H{"assigned": true})
}

// handleAnalytics implements GET /customer-success/analytics/:org_id
// (spec supplement: customer-success read access to onboarding/usage
// state, gated on the analytics:view permission).
func (s *Server) handleAnalytics(c *gin.Context) {
	ac := authContextFrom(c)
	if err := s.shell.Authorize(ac, config.ResourceAPICallsPerHour, permission.ResourceAnalytics, permission.ActionView); err != nil {
		respondErr(c, err, ac.OrgID, ac.UserID)
		return
	}
	orgID := c.Param("org_id")
	onboarding, _ := s.onboarding.Get(c.Request.Context(), orgID)
	respondOK(c, ac, gin.H{"org_id": orgID, "onboarding": onboarding})
}
