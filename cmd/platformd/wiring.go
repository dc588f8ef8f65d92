package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/coreforge/agentcore/pkg/agent"
	"github.com/coreforge/agentcore/pkg/api"
	"github.com/coreforge/agentcore/pkg/auth"
	"github.com/coreforge/agentcore/pkg/cleanup"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/featureflag"
	"github.com/coreforge/agentcore/pkg/identity"
	"github.com/coreforge/agentcore/pkg/masking"
	"github.com/coreforge/agentcore/pkg/quota"
	"github.com/coreforge/agentcore/pkg/session"
	"github.com/coreforge/agentcore/pkg/shell"
	"github.com/coreforge/agentcore/pkg/storage"
	"github.com/coreforge/agentcore/pkg/tenancy"
	"github.com/coreforge/agentcore/pkg/workflow"
)

// platform bundles every wired component a subcommand might need.
// buildPlatform populates every field; serve and seed-plans use it, while
// migrate only opens the store and builds no platform.
type platform struct {
	cfg *config.Config
	db  storage.Store

	users      *identity.Store
	tenants    *tenancy.Manager
	quota      *quota.Engine
	tokens     *auth.TokenService
	attempts   *auth.AttemptLog
	authSvc    *auth.Service
	sessions   *session.Store
	registry   *agent.Registry
	dispatcher *agent.Dispatcher
	workflows  *workflow.Engine
	features   *featureflag.Evaluator
	onboarding *featureflag.OnboardingStore
	masker     *masking.Masker
	cleanupSvc *cleanup.Service
	shell      *shell.Shell
	api        *api.Server
}

// loadConfig loads .env then the YAML config, mirroring the teacher's
// cmd/tarsy startup sequence.
func loadConfig(configDir string) (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment", "path", envPath)
	}

	cfg, err := config.Initialize(configDir)
	if err != nil {
		return nil, fmt.Errorf("initialize config: %w", err)
	}
	return cfg, nil
}

// openStore opens the Postgres-backed Store the daemon runs against.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	db, err := storage.NewPostgresStore(ctx, storage.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return db, nil
}

// buildPlatform wires every core component together, the daemon's single
// composition root.
func buildPlatform(ctx context.Context, cfg *config.Config, db storage.Store) *platform {
	p := &platform{cfg: cfg, db: db}

	p.users = identity.New(db)
	p.quota = quota.New()
	p.tenants = tenancy.New(db, p.users, p.quota, cfg)
	p.tokens = auth.NewTokenService([]byte(cfg.TokenSigningSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	p.attempts = auth.NewAttemptLog(cfg.Lockout)
	p.authSvc = auth.NewService(p.users, p.tenants, p.tokens, p.attempts, cfg)

	p.sessions = session.New(cfg.HistoryCap)

	p.registry = agent.New()
	agent.RegisterDefaults(p.registry)
	p.dispatcher = agent.NewDispatcher(p.registry, func(agentName string, succeeded bool) {
		slog.Debug("agent usage", "agent", agentName, "succeeded", succeeded)
	})

	p.masker = masking.New()
	p.dispatcher.SetMasker(p.masker)

	p.workflows = workflow.New(db, p.quota, p.tenants, p.dispatcher)

	p.features = featureflag.NewEvaluator(cfg)
	p.onboarding = featureflag.NewOnboardingStore(db)

	p.cleanupSvc = cleanup.NewService(cleanup.Config{
		Interval:       15 * time.Minute,
		SessionIdleTTL: cfg.SessionIdleTTL,
	}, p.sessions, p.attempts, p.tokens)

	p.shell = shell.New(p.authSvc, p.tenants, p.quota, p.users, p.sessions, p.dispatcher, p.workflows)
	p.api = api.NewServer(cfg, p.authSvc, p.shell, p.features, p.onboarding)

	return p
}
