package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/coreforge/agentcore/pkg/apierr"
	"github.com/coreforge/agentcore/pkg/config"
	"github.com/coreforge/agentcore/pkg/identity"
)

// bcryptCost matches the teacher's default work factor; raising it trades
// login latency for brute-force resistance.
const bcryptCost = bcrypt.DefaultCost

// ValidatePassword enforces the configured password policy (spec §4.2) and
// returns an apierr.Error with KindWeakPassword describing the first
// violation found.
func ValidatePassword(policy config.PasswordPolicy, password string) error {
	if len(password) < policy.MinLength {
		return apierr.New(apierr.KindWeakPassword, "password is too short")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if policy.RequireUpper && !hasUpper {
		return apierr.New(apierr.KindWeakPassword, "password must contain an uppercase letter")
	}
	if policy.RequireLower && !hasLower {
		return apierr.New(apierr.KindWeakPassword, "password must contain a lowercase letter")
	}
	if policy.RequireDigit && !hasDigit {
		return apierr.New(apierr.KindWeakPassword, "password must contain a digit")
	}
	if policy.RequireSpecial && !hasSpecial {
		return apierr.New(apierr.KindWeakPassword, "password must contain a special character")
	}

	lowered := strings.ToLower(password)
	for _, denied := range policy.DenyList {
		if lowered == strings.ToLower(denied) {
			return apierr.New(apierr.KindWeakPassword, "password is too common")
		}
	}

	return nil
}

// HashPassword produces the Credential stored on the User record.
func HashPassword(password string) (identity.Credential, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return identity.Credential{}, apierr.Wrap(apierr.KindInternal, "failed to hash password", err)
	}
	return identity.Credential{
		KDFName:    "bcrypt",
		Iterations: bcryptCost,
		Hash:       hash,
	}, nil
}

// VerifyPassword reports whether password matches the stored credential.
func VerifyPassword(cred identity.Credential, password string) bool {
	if cred.KDFName != "bcrypt" {
		return false
	}
	return bcrypt.CompareHashAndPassword(cred.Hash, []byte(password)) == nil
}
