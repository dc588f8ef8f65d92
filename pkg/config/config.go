// Package config loads the process-wide configuration described in spec §6.6:
// the signing secret, token TTLs, password policy, lockout thresholds,
// per-plan quota defaults, session/history bounds, request timeout, and the
// hot-reloadable feature-flag rollout rules. It follows the teacher's
// pkg/config layering — YAML file + environment overlay, merged over
// built-in defaults with dario.cat/mergo, validated before use.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds Postgres connection settings for the persistence
// layer (pkg/storage).
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// fileConfig is the literal YAML schema; Config wraps it with derived,
// validated, runtime-usable fields (duration parsing, default merging).
type fileConfig struct {
	TokenSigningSecret string                            `yaml:"token_signing_secret"`
	AccessTokenTTL     time.Duration                      `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration                      `yaml:"refresh_token_ttl"`
	PasswordPolicy     *PasswordPolicy                    `yaml:"password_policy"`
	Lockout            *LockoutConfig                     `yaml:"lockout"`
	TokenPolicy        *TokenPolicy                       `yaml:"token_policy"`
	DefaultPlanQuotas  map[PlanType]map[QuotaResource]int `yaml:"default_plan_quotas"`
	SessionIdleTTL     time.Duration                      `yaml:"session_idle_ttl"`
	HistoryCap         int                                `yaml:"history_cap"`
	RolloutRules       []RolloutRule                      `yaml:"rollout_rules"`
	RequestTimeout     time.Duration                       `yaml:"request_timeout"`
	Database           DatabaseConfig                      `yaml:"database"`
	HTTPPort           int                                  `yaml:"http_port"`
}

// Config is the umbrella, ready-to-use configuration object returned by
// Load/Initialize, matching the role of the teacher's config.Config.
type Config struct {
	configDir string

	TokenSigningSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	PasswordPolicy     PasswordPolicy
	Lockout            LockoutConfig
	TokenPolicy        TokenPolicy
	DefaultPlanQuotas  map[PlanType]map[QuotaResource]int
	SessionIdleTTL     time.Duration
	HistoryCap         int
	RequestTimeout     time.Duration
	Database           DatabaseConfig
	HTTPPort           int

	// rolloutMu guards RolloutRules since it is the one hot-reloadable
	// section (§6.6): ReloadRolloutRules may run concurrently with reads
	// from the feature-flag evaluator.
	rolloutMu    sync.RWMutex
	rolloutRules []RolloutRule

	path string
}

// Initialize loads, defaults, and validates configuration rooted at
// configDir/platform.yaml. This is the primary entry point, mirroring the
// teacher's config.Initialize.
func Initialize(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "platform.yaml")

	cfg, err := load(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}
	cfg.configDir = configDir
	cfg.path = path

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var user fileConfig
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(expandEnv(raw), &user); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	builtin := fileConfig{
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		PasswordPolicy:    policyPtr(defaultPasswordPolicy()),
		Lockout:           lockoutPtr(defaultLockout()),
		TokenPolicy:       &TokenPolicy{RotateRefreshTokens: true},
		DefaultPlanQuotas: defaultPlanQuotas(),
		SessionIdleTTL:    24 * time.Hour,
		HistoryCap:        50,
		RequestTimeout:    30 * time.Second,
		Database: DatabaseConfig{
			Host: "localhost", Port: 5432, User: "platform", Database: "platform",
			SSLMode: "disable", MaxOpenConns: 25, MaxIdleConns: 10,
			ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
		},
		HTTPPort: 8080,
	}

	// User-provided values win; zero-valued fields fall back to builtin. A
	// section the file supplies (password_policy, lockout, token_policy) is
	// taken whole, so an explicit false inside it stays false.
	if err := mergo.Merge(&user, builtin, mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}

	if env := os.Getenv("TOKEN_SIGNING_SECRET"); env != "" {
		user.TokenSigningSecret = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		user.Database.Password = env
	}

	return &Config{
		TokenSigningSecret: user.TokenSigningSecret,
		AccessTokenTTL:     user.AccessTokenTTL,
		RefreshTokenTTL:    user.RefreshTokenTTL,
		PasswordPolicy:     *user.PasswordPolicy,
		Lockout:            *user.Lockout,
		TokenPolicy:        *user.TokenPolicy,
		DefaultPlanQuotas:  user.DefaultPlanQuotas,
		SessionIdleTTL:     user.SessionIdleTTL,
		HistoryCap:         user.HistoryCap,
		RequestTimeout:     user.RequestTimeout,
		Database:           user.Database,
		HTTPPort:           user.HTTPPort,
		rolloutRules:       user.RolloutRules,
	}, nil
}

func validate(cfg *Config) error {
	if cfg.TokenSigningSecret == "" {
		return fmt.Errorf("%w: token_signing_secret", ErrMissingRequiredField)
	}
	if len(cfg.TokenSigningSecret) < 16 {
		return fmt.Errorf("token_signing_secret must be at least 16 bytes")
	}
	if cfg.HistoryCap <= 0 {
		return fmt.Errorf("history_cap must be positive")
	}
	if _, ok := cfg.DefaultPlanQuotas[PlanStarter]; !ok {
		return fmt.Errorf("default_plan_quotas missing %q", PlanStarter)
	}
	return nil
}

// RolloutRules returns a snapshot of the current feature-flag rollout rules.
func (c *Config) RolloutRules() []RolloutRule {
	c.rolloutMu.RLock()
	defer c.rolloutMu.RUnlock()
	out := make([]RolloutRule, len(c.rolloutRules))
	copy(out, c.rolloutRules)
	return out
}

// ReloadRolloutRules hot-swaps the rollout rules from disk without
// restarting the process — the one configuration section §6.6 marks
// hot-reloadable.
func (c *Config) ReloadRolloutRules() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("reload rollout rules: %w", err)
	}
	var parsed fileConfig
	if err := yaml.Unmarshal(expandEnv(raw), &parsed); err != nil {
		return fmt.Errorf("reload rollout rules: parse: %w", err)
	}
	c.rolloutMu.Lock()
	c.rolloutRules = parsed.RolloutRules
	c.rolloutMu.Unlock()
	return nil
}

func policyPtr(p PasswordPolicy) *PasswordPolicy { return &p }
func lockoutPtr(l LockoutConfig) *LockoutConfig   { return &l }
