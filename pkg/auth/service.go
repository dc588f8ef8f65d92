// Package auth implements the Auth Service (spec §4.2): credential
// verification, token issuance/refresh/revocation, failed-attempt
// throttling, and MFA enrollment hooks.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/identity"
	"github.com/coreforge/agentcore/pkg/tenancy"
)

var validate = validator.New()

// defaultOrgDomain names the shared org new users land in when register is
// called without org_name.
const defaultOrgDomain = "default"

// Service is the Auth Service. It composes the Identity Store, Tenancy
// Manager, Credential Attempt Log, and Token Service behind the operation
// set spec §4.2 names.
type Service struct {
	users   *identity.Store
	tenants *tenancy.Manager
	tokens  *TokenService
	attempt *AttemptLog
	cfg     *config.Config
}

// NewService wires an Auth Service.
func NewService(users *identity.Store, tenants *tenancy.Manager, tokens *TokenService, attempt *AttemptLog, cfg *config.Config) *Service {
	return &Service{users: users, tenants: tenants, tokens: tokens, attempt: attempt, cfg: cfg}
}

// Register implements register(email, username, password, full_name?,
// org_name?). If orgName is non-empty a new Organization is created with
// the caller as OrgOwner; otherwise the user joins the shared default org
// as a TeamMember.
func (s *Service) Register(ctx context.Context, email, username, password, fullName, orgName string) (*identity.User, error) {
	if validate.Var(email, "required,email") != nil {
		return nil, apierr.New(apierr.KindInvalidEmail, "invalid email address")
	}
	if err := ValidatePassword(s.cfg.PasswordPolicy, password); err != nil {
		return nil, err
	}

	cred, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	var orgID string
	var roles []identity.Role
	if orgName != "" {
		org, err := s.tenants.CreateOrg(ctx, uuid.New().String(), orgName, "", email, config.PlanStarter)
		if err != nil {
			return nil, err
		}
		orgID = org.OrgID
		roles = []identity.Role{identity.RoleOrgOwner}
	} else {
		org, err := s.ensureDefaultOrg(ctx)
		if err != nil {
			return nil, err
		}
		orgID = org.OrgID
		roles = []identity.Role{identity.RoleTeamMember}
	}

	user := &identity.User{
		UserID:     uuid.New().String(),
		Email:      email,
		Username:   username,
		FullName:   fullName,
		Credential: cred,
		OrgID:      orgID,
		Roles:      roles,
		Active:     true,
		CreatedAt:  time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, identity.ErrAlreadyExists) {
			return nil, apierr.New(apierr.KindUserExists, "a user with this email or username already exists")
		}
		return nil, apierr.Wrap(apierr.KindInternal, "failed to create user", err)
	}

	if orgName != "" {
		if err := s.tenants.SetOwner(ctx, orgID, user.UserID); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "failed to stamp org owner", err)
		}
	}

	return user, nil
}

func (s *Service) ensureDefaultOrg(ctx context.Context) (*tenancy.Organization, error) {
	org, err := s.tenants.GetOrg(ctx, defaultOrgDomain)
	if err == nil {
		return org, nil
	}
	return s.tenants.CreateOrg(ctx, defaultOrgDomain, "Default Organization", defaultOrgDomain, "", config.PlanStarter)
}

// LoginResult is what Login returns on success.
type LoginResult struct {
	User    *identity.User
	Access  Issued
	Refresh Issued
}

// Login implements login(username_or_email, password, client_key).
// Credential-related failures are deliberately indistinguishable
// (InvalidCredentials) whether the user is unknown or the password is
// wrong, to avoid user enumeration (spec §4.2, §7).
func (s *Service) Login(ctx context.Context, usernameOrEmail, password, clientKey string) (*LoginResult, error) {
	now := time.Now()
	if locked, until := s.attempt.Locked(clientKey, now); locked {
		return nil, apierr.New(apierr.KindRateLimited, "too many failed attempts; try again at "+until.Format(time.RFC3339))
	}

	user, err := s.users.GetByEmailOrUsername(ctx, usernameOrEmail)
	if err != nil {
		s.attempt.RecordFailure(clientKey, now)
		return nil, apierr.New(apierr.KindInvalidCredentials, "invalid credentials")
	}
	if !VerifyPassword(user.Credential, password) {
		s.attempt.RecordFailure(clientKey, now)
		return nil, apierr.New(apierr.KindInvalidCredentials, "invalid credentials")
	}
	if !user.Active {
		s.attempt.RecordFailure(clientKey, now)
		return nil, apierr.New(apierr.KindInvalidCredentials, "invalid credentials")
	}

	s.attempt.RecordSuccess(clientKey)
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to stamp last login", err)
	}

	access, refresh, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Access: access, Refresh: refresh}, nil
}

func (s *Service) issuePair(ctx context.Context, user *identity.User) (Issued, Issued, error) {
	tc, err := s.tenants.GetTenantContext(ctx, user.UserID)
	if err != nil {
		return Issued{}, Issued{}, err
	}
	roles := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roles[i] = string(r)
	}
	access, err := s.tokens.IssueAccess(user.UserID, user.OrgID, user.TeamIDs, roles, tc.Permissions)
	if err != nil {
		return Issued{}, Issued{}, apierr.Wrap(apierr.KindInternal, "failed to issue access token", err)
	}
	refresh, err := s.tokens.IssueRefresh(user.UserID, user.OrgID, user.TeamIDs, roles, tc.Permissions)
	if err != nil {
		return Issued{}, Issued{}, apierr.Wrap(apierr.KindInternal, "failed to issue refresh token", err)
	}
	return access, refresh, nil
}

// Refresh implements refresh(refresh_token). If the configured token policy
// rotates refresh tokens, the presented one is revoked once the new access
// token is minted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Issued, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return Issued{}, translateTokenErr(err)
	}
	if claims.Kind != TokenRefresh {
		return Issued{}, apierr.New(apierr.KindInvalidToken, "token is not a refresh token")
	}

	access, err := s.tokens.issue(TokenAccess, claims.UserID, claims.OrgID, claims.TeamIDs, claims.Roles, claims.Permissions)
	if err != nil {
		return Issued{}, apierr.Wrap(apierr.KindInternal, "failed to issue access token", err)
	}

	if s.cfg.TokenPolicy.RotateRefreshTokens {
		s.tokens.Revoke(claims)
	}
	return access, nil
}

// Verify implements verify(access_token).
func (s *Service) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, translateTokenErr(err)
	}
	if claims.Kind != TokenAccess {
		return nil, apierr.New(apierr.KindInvalidToken, "token is not an access token")
	}
	return claims, nil
}

// Logout implements logout(access_token).
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return translateTokenErr(err)
	}
	s.tokens.Revoke(claims)
	return nil
}

// ChangePassword implements change_password(user_id, current, new). All
// outstanding tokens for the user are revoked once the new credential is
// committed.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apierr.New(apierr.KindNotFound, "user not found")
	}
	if !VerifyPassword(user.Credential, current) {
		return apierr.New(apierr.KindInvalidCredentials, "invalid credentials")
	}
	if err := ValidatePassword(s.cfg.PasswordPolicy, newPassword); err != nil {
		return err
	}
	cred, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	user.Credential = cred
	if err := s.users.Update(ctx, user); err != nil {
		return apierr.Wrap(apierr.KindInternal, "failed to update credential", err)
	}
	s.tokens.RevokeAllForUser(userID, time.Now())
	return nil
}

// MFAEnrollResult is returned by MFAEnroll: a fresh secret plus backup
// codes, not yet committed as active until MFAVerify succeeds once.
type MFAEnrollResult struct {
	Secret      string
	BackupCodes []string
}

// MFAEnroll implements mfa_enroll(user_id). It generates a fresh secret and
// backup codes and stores them pending confirmation; mfa_enrolled is not
// set until MFAVerify succeeds.
func (s *Service) MFAEnroll(ctx context.Context, userID string) (*MFAEnrollResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, apierr.New(apierr.KindNotFound, "user not found")
	}
	secret, backupCodes, err := GenerateMFASecret()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to generate mfa secret", err)
	}
	user.MFASecret = secret
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "failed to store mfa secret", err)
	}
	return &MFAEnrollResult{Secret: secret, BackupCodes: backupCodes}, nil
}

// MFAVerify implements mfa_verify(user_id, code). On first success it marks
// the user mfa_enrolled; a new MFA-gated token is not issued until this
// returns true (spec §4.2).
func (s *Service) MFAVerify(ctx context.Context, userID, code string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apierr.New(apierr.KindNotFound, "user not found")
	}
	if user.MFASecret == "" {
		return apierr.New(apierr.KindInvalidInput, "mfa not enrolled")
	}
	if !VerifyTOTP(user.MFASecret, code, time.Now()) {
		return apierr.New(apierr.KindInvalidCredentials, "invalid mfa code")
	}
	if !user.MFAEnrolled {
		user.MFAEnrolled = true
		if err := s.users.Update(ctx, user); err != nil {
			return apierr.Wrap(apierr.KindInternal, "failed to confirm mfa enrollment", err)
		}
	}
	return nil
}

func translateTokenErr(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apierr.New(apierr.KindTokenExpired, "token expired")
	case errors.Is(err, ErrInvalidToken):
		return apierr.New(apierr.KindInvalidToken, "invalid token")
	default:
		return apierr.Wrap(apierr.KindInternal, "token verification failed", err)
	}
}
