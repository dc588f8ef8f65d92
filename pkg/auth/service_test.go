package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/identity"
	"github.com/coreforge/agentcore/pkg/quota"
	"github.com/coreforge/agentcore/pkg/storage"
	"github.com/coreforge/agentcore/pkg/tenancy"
)

const testYAML = `
token_signing_secret: "0123456789abcdef"
password_policy:
  min_length: 8
  require_upper: false
  require_lower: false
  require_digit: false
  require_special: false
lockout:
  max_failures: 3
  window: 1m
`

func testServiceConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "platform.yaml"), []byte(testYAML), 0o600))
	cfg, err := config.Initialize(dir)
	require.NoError(t, err)
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := testServiceConfig(t)
	db := storage.NewMemoryStore()
	users := identity.New(db)
	quotaEngine := quota.New()
	tenants := tenancy.New(db, users, quotaEngine, cfg)
	tokens := NewTokenService([]byte(cfg.TokenSigningSecret+"0123456789"), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	attempts := NewAttemptLog(cfg.Lockout)
	return NewService(users, tenants, tokens, attempts, cfg)
}

func TestRegisterJoinsDefaultOrgWithoutOrgName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, "default", user.OrgID)
	assert.Contains(t, user.Roles, identity.RoleTeamMember)
}

func TestRegisterWithOrgNameCreatesNewOrgAndOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "owner@example.com", "owner1", "password1", "Owner", "Acme Inc")
	require.NoError(t, err)
	assert.Contains(t, user.Roles, identity.RoleOrgOwner)
	assert.NotEqual(t, "default", user.OrgID)

	org, err := svc.tenants.GetOrg(ctx, user.OrgID)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, org.OwnerUserID)
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(context.Background(), "not-an-email", "alice", "password1", "Alice", "")
	assert.Equal(t, apierr.KindInvalidEmail, apierr.KindOf(err))
}

func TestRegisterRejectsDuplicateUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@example.com", "bob", "password1", "Bob", "")
	assert.Equal(t, apierr.KindUserExists, apierr.KindOf(err))
}

func TestLoginSucceedsAndIssuesTokenPair(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Access.Token)
	assert.NotEmpty(t, result.Refresh.Token)
}

func TestLoginWrongPasswordIsInvalidCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrongpassword", "client-1")
	assert.Equal(t, apierr.KindInvalidCredentials, apierr.KindOf(err))
}

func TestLoginUnknownUserIsInvalidCredentialsNotNotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody", "whatever", "client-1")
	assert.Equal(t, apierr.KindInvalidCredentials, apierr.KindOf(err), "unknown-user and wrong-password must be indistinguishable to avoid enumeration")
}

func TestLoginLocksOutAfterRepeatedFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, "alice", "wrongpassword", "client-1")
	}

	_, err = svc.Login(ctx, "alice", "password1", "client-1")
	assert.Equal(t, apierr.KindRateLimited, apierr.KindOf(err), "correct password must still be rejected while locked out")
}

func TestVerifyRoundTripsAccessToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, result.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.UserID, claims.UserID)
}

func TestVerifyRejectsRefreshTokenAsAccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, result.Refresh.Token)
	assert.Equal(t, apierr.KindInvalidToken, apierr.KindOf(err))
}

func TestRefreshRotatesRefreshTokenByDefault(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	newAccess, err := svc.Refresh(ctx, result.Refresh.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess.Token)

	_, err = svc.Refresh(ctx, result.Refresh.Token)
	assert.Equal(t, apierr.KindInvalidToken, apierr.KindOf(err), "a rotated refresh token must not be usable twice")
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.Access.Token))

	_, err = svc.Verify(ctx, result.Access.Token)
	assert.Equal(t, apierr.KindInvalidToken, apierr.KindOf(err))
}

func TestChangePasswordRevokesAllOutstandingTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)
	result, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, result.User.UserID, "password1", "newpassword1"))

	_, err = svc.Verify(ctx, result.Access.Token)
	assert.Equal(t, apierr.KindInvalidToken, apierr.KindOf(err))

	_, err = svc.Login(ctx, "alice", "newpassword1", "client-2")
	assert.NoError(t, err)
}

func TestChangePasswordWrongCurrentPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	user, err := svc.Login(ctx, "alice", "password1", "client-1")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.User.UserID, "wrongcurrent", "newpassword1")
	assert.Equal(t, apierr.KindInvalidCredentials, apierr.KindOf(err))
}

func TestMFAEnrollAndVerifyFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	user, err := svc.Register(ctx, "a@example.com", "alice", "password1", "Alice", "")
	require.NoError(t, err)

	enroll, err := svc.MFAEnroll(ctx, user.UserID)
	require.NoError(t, err)
	assert.NotEmpty(t, enroll.Secret)

	err = svc.MFAVerify(ctx, user.UserID, "000000")
	assert.Error(t, err, "an arbitrary code must not verify")

	got, err := svc.users.GetByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.False(t, got.MFAEnrolled, "a failed verify must not mark mfa_enrolled")
}
