package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// TokenKind distinguishes access from refresh tokens; both share the claim
// schema (spec §6.3).
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// clockSkew is how much leeway verification grants expired/not-yet-valid
// tokens (spec §6.3: "tolerate clock skew of up to 60 s").
const clockSkew = 60 * time.Second

// Claims is the self-describing payload every token carries (spec §6.3).
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	OrgID       string   `json:"org_id"`
	TeamIDs     []string `json:"team_ids"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Kind        TokenKind `json:"kind"`
	JTI         string   `json:"jti"`
}

// Issued is what callers get back from IssueAccess/IssueRefresh: the signed
// string plus the decoded claims, so the service can log issued_at/expiry
// without re-parsing.
type Issued struct {
	Token  string
	Claims Claims
}

// TokenService signs and verifies JWTs with an HMAC secret, and tracks
// revoked token identifiers so logout/rotation can reject a token whose
// signature and expiry would otherwise still admit it.
type TokenService struct {
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	revocation  *revocationSet
	minIssued   *minIssuedSet
}

// NewTokenService constructs a TokenService. secret must be non-empty; it is
// the deployment-scoped signing key (spec §6.3).
func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revocation: newRevocationSet(),
		minIssued:  newMinIssuedSet(),
	}
}

func (t *TokenService) issue(kind TokenKind, userID, orgID string, teamIDs, roles, permissions []string) (Issued, error) {
	now := time.Now()
	ttl := t.accessTTL
	if kind == TokenRefresh {
		ttl = t.refreshTTL
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:      userID,
		OrgID:       orgID,
		TeamIDs:     teamIDs,
		Roles:       roles,
		Permissions: permissions,
		Kind:        kind,
		JTI:         uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Issued{Token: signed, Claims: claims}, nil
}

// IssueAccess mints a fresh access token.
func (t *TokenService) IssueAccess(userID, orgID string, teamIDs, roles, permissions []string) (Issued, error) {
	return t.issue(TokenAccess, userID, orgID, teamIDs, roles, permissions)
}

// IssueRefresh mints a fresh refresh token.
func (t *TokenService) IssueRefresh(userID, orgID string, teamIDs, roles, permissions []string) (Issued, error) {
	return t.issue(TokenRefresh, userID, orgID, teamIDs, roles, permissions)
}

// ErrInvalidToken covers signature failure, malformed tokens, and
// revocation. ErrTokenExpired is distinct so callers can differentiate per
// spec §7.
var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// Verify checks signature, expiry (with clock skew), and revocation, and
// returns the decoded claims.
func (t *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	now := time.Now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew), true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyIssuedAt(now.Add(clockSkew), false) || !claims.VerifyNotBefore(now.Add(clockSkew), false) {
		return nil, ErrInvalidToken
	}
	if t.revocation.isRevoked(claims.JTI) {
		return nil, ErrInvalidToken
	}
	if t.minIssued.isBefore(claims.UserID, claims.IssuedAt.Time) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke adds a token's identifier to the revocation set until
// expires_at + skew, per spec §3/§7/testable-property 4.
func (t *TokenService) Revoke(claims *Claims) {
	t.revocation.revoke(claims.JTI, claims.ExpiresAt.Time.Add(clockSkew))
}

// RevokeAllForUser invalidates every token for userID issued before now,
// regardless of individual jti — used by change_password, which the spec
// allows to optionally revoke all outstanding tokens for the user (§4.2).
// issued_at carries whole seconds, so a token minted later within the same
// second as now is rejected as well.
func (t *TokenService) RevokeAllForUser(userID string, now time.Time) {
	t.minIssued.set(userID, now)
}

// revocationSet is an append-mostly set read on every Verify call; it must
// scale to concurrent reads (spec §5 shared-resource policy), hence RWMutex
// rather than a single global lock.
type revocationSet struct {
	mu      sync.RWMutex
	expires map[string]time.Time
}

func newRevocationSet() *revocationSet {
	return &revocationSet{expires: make(map[string]time.Time)}
}

func (r *revocationSet) revoke(jti string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[jti] = until
}

func (r *revocationSet) isRevoked(jti string) bool {
	r.mu.RLock()
	until, ok := r.expires[jti]
	r.mu.RUnlock()
	return ok && time.Now().Before(until)
}

// Sweep purges revocation entries whose skew window has passed, keeping the
// set from growing without bound. Intended to be called periodically by
// pkg/cleanup, mirroring the teacher's idle-session sweep cadence.
func (r *revocationSet) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jti, until := range r.expires {
		if now.After(until) {
			delete(r.expires, jti)
		}
	}
}

// SweepRevocations exposes revocationSet.Sweep and minIssuedSet.Sweep on the
// service.
func (t *TokenService) SweepRevocations(now time.Time) {
	t.revocation.Sweep(now)
	t.minIssued.Sweep(now, t.refreshTTL)
}

// minIssuedSet tracks, per user, the earliest issued_at a token must carry
// to still be considered valid. Set by RevokeAllForUser; consulted on every
// Verify.
type minIssuedSet struct {
	mu  sync.RWMutex
	min map[string]time.Time
}

func newMinIssuedSet() *minIssuedSet {
	return &minIssuedSet{min: make(map[string]time.Time)}
}

func (m *minIssuedSet) set(userID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.min[userID] = at
}

func (m *minIssuedSet) isBefore(userID string, issuedAt time.Time) bool {
	m.mu.RLock()
	min, ok := m.min[userID]
	m.mu.RUnlock()
	return ok && issuedAt.Before(min)
}

// Sweep purges per-user floors once the refresh TTL has elapsed
// since they were set — after that, no token old enough to be affected can
// still be unexpired anyway. Callers pass the refresh TTL as maxAge.
func (m *minIssuedSet) Sweep(now time.Time, maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, at := range m.min {
		if now.Sub(at) > maxAge {
			delete(m.min, userID)
		}
	}
}
