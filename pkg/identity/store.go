package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreforge/agentcore/pkg/storage"
)

// ErrAlreadyExists is returned by Create when email or username collides
// with an existing user. The spec treats email uniqueness as global (an
// Open Question resolved that way in SPEC_FULL.md / DESIGN.md).
var ErrAlreadyExists = errors.New("identity: user already exists")

// ErrNotFound is returned when a lookup finds no matching user.
var ErrNotFound = errors.New("identity: user not found")

const (
	keyUserByID    = "user:id:"
	keyEmailIndex  = "user:idx:email:"
	keyUserIndex   = "user:idx:username:"
	keyOrgIndex    = "user:orgidx:"
)

// Store is the Identity Store (spec §4.1). It is read-heavy by design:
// get_by_email_or_username resolves through a direct secondary-index
// lookup rather than a scan, so latency does not grow with the number of
// users in the store.
type Store struct {
	db storage.Store
}

// New wires an Identity Store onto a persistence Store.
func New(db storage.Store) *Store {
	return &Store{db: db}
}

type userRow struct {
	UserID      string            `json:"user_id"`
	Email       string            `json:"email"`
	Username    string            `json:"username"`
	FullName    string            `json:"full_name"`
	Credential  Credential        `json:"credential"`
	OrgID       string            `json:"org_id"`
	TeamIDs     []string          `json:"team_ids"`
	Roles       []Role            `json:"roles"`
	MFAEnrolled bool              `json:"mfa_enrolled"`
	MFASecret   string            `json:"mfa_secret,omitempty"`
	Active      bool              `json:"active"`
	CreatedAt   int64             `json:"created_at"`
	LastLoginAt *int64            `json:"last_login_at,omitempty"`
	Preferences map[string]any    `json:"preferences,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create inserts a new user, atomically reserving the email and username
// uniqueness indexes. On any index collision the partial reservation is
// rolled back and ErrAlreadyExists is returned.
func (s *Store) Create(ctx context.Context, u *User) error {
	email := normalizeEmail(u.Email)
	username := normalizeUsername(u.Username)

	emailKey := keyEmailIndex + email
	if err := s.db.CompareAndSet(ctx, emailKey, nil, []byte(u.UserID)); err != nil {
		if errors.Is(err, storage.ErrCASMismatch) {
			return fmt.Errorf("%w: email", ErrAlreadyExists)
		}
		return fmt.Errorf("reserve email index: %w", err)
	}

	usernameKey := keyUserIndex + username
	if err := s.db.CompareAndSet(ctx, usernameKey, nil, []byte(u.UserID)); err != nil {
		_ = s.db.Delete(ctx, emailKey)
		if errors.Is(err, storage.ErrCASMismatch) {
			return fmt.Errorf("%w: username", ErrAlreadyExists)
		}
		return fmt.Errorf("reserve username index: %w", err)
	}

	row := toRow(u)
	raw, err := json.Marshal(row)
	if err != nil {
		_ = s.db.Delete(ctx, emailKey)
		_ = s.db.Delete(ctx, usernameKey)
		return fmt.Errorf("marshal user: %w", err)
	}

	idKey := keyUserByID + u.UserID
	if err := s.db.CompareAndSet(ctx, idKey, nil, raw); err != nil {
		_ = s.db.Delete(ctx, emailKey)
		_ = s.db.Delete(ctx, usernameKey)
		return fmt.Errorf("write user record: %w", err)
	}

	orgKey := keyOrgIndex + u.OrgID + ":" + u.UserID
	if err := s.db.Put(ctx, orgKey, []byte(u.UserID)); err != nil {
		return fmt.Errorf("write org index: %w", err)
	}

	return nil
}

// GetByID fetches a user by user_id.
func (s *Store) GetByID(ctx context.Context, userID string) (*User, error) {
	raw, err := s.db.Get(ctx, keyUserByID+userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	var row userRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("unmarshal user %s: %w", userID, err)
	}
	return fromRow(&row), nil
}

// GetByEmailOrUsername resolves either an email or a username to a User via
// the relevant secondary index, then a single by-ID fetch — O(1) regardless
// of store size.
func (s *Store) GetByEmailOrUsername(ctx context.Context, identifier string) (*User, error) {
	var idKey string
	if strings.Contains(identifier, "@") {
		idKey = keyEmailIndex + normalizeEmail(identifier)
	} else {
		idKey = keyUserIndex + normalizeUsername(identifier)
	}

	idBytes, err := s.db.Get(ctx, idKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identifier: %w", err)
	}

	return s.GetByID(ctx, string(idBytes))
}

// Update overwrites the stored record for u.UserID. If email or username
// changed since creation, the secondary indexes are moved to match.
func (s *Store) Update(ctx context.Context, u *User) error {
	existing, err := s.GetByID(ctx, u.UserID)
	if err != nil {
		return err
	}

	if normalizeEmail(existing.Email) != normalizeEmail(u.Email) {
		newKey := keyEmailIndex + normalizeEmail(u.Email)
		if err := s.db.CompareAndSet(ctx, newKey, nil, []byte(u.UserID)); err != nil {
			if errors.Is(err, storage.ErrCASMismatch) {
				return fmt.Errorf("%w: email", ErrAlreadyExists)
			}
			return fmt.Errorf("reserve new email index: %w", err)
		}
		_ = s.db.Delete(ctx, keyEmailIndex+normalizeEmail(existing.Email))
	}

	if normalizeUsername(existing.Username) != normalizeUsername(u.Username) {
		newKey := keyUserIndex + normalizeUsername(u.Username)
		if err := s.db.CompareAndSet(ctx, newKey, nil, []byte(u.UserID)); err != nil {
			if errors.Is(err, storage.ErrCASMismatch) {
				return fmt.Errorf("%w: username", ErrAlreadyExists)
			}
			return fmt.Errorf("reserve new username index: %w", err)
		}
		_ = s.db.Delete(ctx, keyUserIndex+normalizeUsername(existing.Username))
	}

	raw, err := json.Marshal(toRow(u))
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.db.Put(ctx, keyUserByID+u.UserID, raw); err != nil {
		return fmt.Errorf("write user record: %w", err)
	}
	return nil
}

// ListByOrg returns every user belonging to orgID via the org secondary
// index — it never scans the full user table.
func (s *Store) ListByOrg(ctx context.Context, orgID string) ([]*User, error) {
	idx, err := s.db.Scan(ctx, keyOrgIndex+orgID+":")
	if err != nil {
		return nil, fmt.Errorf("scan org index: %w", err)
	}

	users := make([]*User, 0, len(idx))
	for _, idBytes := range idx {
		u, err := s.GetByID(ctx, string(idBytes))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func fromRow(row *userRow) *User {
	var last *time.Time
	if row.LastLoginAt != nil {
		t := time.Unix(0, *row.LastLoginAt)
		last = &t
	}
	return &User{
		UserID:      row.UserID,
		Email:       row.Email,
		Username:    row.Username,
		FullName:    row.FullName,
		Credential:  row.Credential,
		OrgID:       row.OrgID,
		TeamIDs:     row.TeamIDs,
		Roles:       row.Roles,
		MFAEnrolled: row.MFAEnrolled,
		MFASecret:   row.MFASecret,
		Active:      row.Active,
		CreatedAt:   time.Unix(0, row.CreatedAt),
		LastLoginAt: last,
		Preferences: row.Preferences,
	}
}

func toRow(u *User) userRow {
	var last *int64
	if u.LastLoginAt != nil {
		v := u.LastLoginAt.UnixNano()
		last = &v
	}
	return userRow{
		UserID:      u.UserID,
		Email:       u.Email,
		Username:    u.Username,
		FullName:    u.FullName,
		Credential:  u.Credential,
		OrgID:       u.OrgID,
		TeamIDs:     u.TeamIDs,
		Roles:       u.Roles,
		MFAEnrolled: u.MFAEnrolled,
		MFASecret:   u.MFASecret,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt.UnixNano(),
		LastLoginAt: last,
		Preferences: u.Preferences,
	}
}
