// Package api provides the platform's HTTP surface (spec §6.2): a gin
// router binding every route to a Request Shell call, with the shell as
// the sole place authorization and quota decisions are made.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/auth"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/featureflag"
	"github.com/coreforge/agentcore/pkg/shell"
)

const ctxKeyAuth = "auth_context"

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	cfg        *config.Config
	auth       *auth.Service
	shell      *shell.Shell
	features   *featureflag.Evaluator
	onboarding *featureflag.OnboardingStore
}

// NewServer builds a Server and registers every route.
func NewServer(cfg *config.Config, authSvc *auth.Service, sh *shell.Shell, features *featureflag.Evaluator, onboarding *featureflag.OnboardingStore) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders(), requestID())

	s := &Server{
		router:     router,
		cfg:        cfg,
		auth:       authSvc,
		shell:      sh,
		features:   features,
		onboarding: onboarding,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	authGroup := s.router.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/refresh", s.handleRefresh)
	authGroup.POST("/logout", s.handleLogout)
	authGroup.POST("/change-password", s.requireAuth(), s.handleChangePassword)
	authGroup.GET("/profile", s.requireAuth(), s.handleProfile)

	chat := s.router.Group("/chat", s.requireAuth())
	chat.POST("", s.handleChat)
	chat.GET("/history", s.handleChatHistory)
	chat.DELETE("/history", s.handleClearChatHistory)

	wf := s.router.Group("/workflow", s.requireAuth())
	wf.POST("/start", s.handleStartWorkflow)
	wf.POST("/:id/continue", s.handleContinueWorkflow)
	wf.POST("/:id/approve", s.handleApproveWorkflow)
	wf.GET("/:id", s.handleWorkflowStatus)

	s.router.GET("/agents/status", s.requireAuth(), s.handleAgentsStatus)

	features := s.router.Group("/features", s.requireAuth())
	features.GET("/:org_id", s.handleGetFeatures)
	features.POST("/:org_id/:feature", s.handleAssignFeature)

	s.router.GET("/customer-success/analytics/:org_id", s.requireAuth(), s.handleAnalytics)
}

// requireAuth resolves the bearer token into a shell.AuthContext and
// stores it on the gin context for handlers to read via authContextFrom.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			respondErr(c, apierr.New(apierr.KindInvalidToken, "missing bearer token"), "", "")
			c.Abort()
			return
		}
		ac, err := s.shell.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondErr(c, err, "", "")
			c.Abort()
			return
		}
		c.Set(ctxKeyAuth, ac)
		c.Next()
	}
}

func authContextFrom(c *gin.Context) *shell.AuthContext {
	v, _ := c.Get(ctxKeyAuth)
	ac, _ := v.(*shell.AuthContext)
	return ac
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start starts the HTTP server on addr. It blocks in ListenAndServe until
// the server stops, so callers run it in its own goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	slog.Info("api server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
