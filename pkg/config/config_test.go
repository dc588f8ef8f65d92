package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, yamlBody string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.yaml"), []byte(yamlBody), 0o600))
}

func TestInitializeAppliesBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `token_signing_secret: "0123456789abcdef"`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.HistoryCap)
	assert.Equal(t, 5, cfg.Lockout.MaxFailures)
	assert.Equal(t, 500, cfg.DefaultPlanQuotas[PlanStarter][ResourceAgentsPerMonth])
}

func TestInitializeUserValuesOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
token_signing_secret: "0123456789abcdef"
history_cap: 10
lockout:
  max_failures: 3
  window: 1m
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HistoryCap)
	assert.Equal(t, 3, cfg.Lockout.MaxFailures)
}

func TestInitializeMissingFileStillAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(dir)
	assert.ErrorIs(t, err, ErrMissingRequiredField, "token_signing_secret is required and has no built-in default")
}

func TestInitializeRejectsShortSigningSecret(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `token_signing_secret: "short"`)

	_, err := Initialize(dir)
	assert.Error(t, err)
}

func TestInitializeExpandsEnvReferences(t *testing.T) {
	t.Setenv("PLATFORM_TEST_SECRET", "0123456789abcdef0123")
	dir := t.TempDir()
	writeConfig(t, dir, `token_signing_secret: "${PLATFORM_TEST_SECRET}"`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123", cfg.TokenSigningSecret)
}

func TestInitializeLeavesUnsetEnvReferenceUntouched(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `token_signing_secret: "${PLATFORM_DOES_NOT_EXIST}"`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "${PLATFORM_DOES_NOT_EXIST}", cfg.TokenSigningSecret, "an unset reference must surface literally rather than silently becoming empty")
}

func TestEnvOverrideWinsOverFileSecret(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_SECRET", "envwins0123456789abc")
	dir := t.TempDir()
	writeConfig(t, dir, `token_signing_secret: "filevalue0123456789"`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "envwins0123456789abc", cfg.TokenSigningSecret)
}

func TestReloadRolloutRulesPicksUpDiskChanges(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
token_signing_secret: "0123456789abcdef"
rollout_rules:
  - feature: beta_widget
    percentage: 10
`)
	cfg, err := Initialize(dir)
	require.NoError(t, err)
	require.Len(t, cfg.RolloutRules(), 1)
	assert.Equal(t, 10, cfg.RolloutRules()[0].Percentage)

	writeConfig(t, dir, `
token_signing_secret: "0123456789abcdef"
rollout_rules:
  - feature: beta_widget
    percentage: 100
`)
	require.NoError(t, cfg.ReloadRolloutRules())
	assert.Equal(t, 100, cfg.RolloutRules()[0].Percentage)
}

func TestLoadErrorUnwrapsUnderlyingCause(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "not: [valid: yaml")

	_, err := Initialize(dir)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "platform.yaml")
}
