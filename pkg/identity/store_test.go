package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreforge/agentcore/pkg/storage"
)

func newUser(id, email, username string) *User {
	return &User{
		UserID:    id,
		Email:     email,
		Username:  username,
		OrgID:     "org1",
		Roles:     []Role{RoleTeamMember},
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestCreateAndGetByID(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()

	u := newUser("u1", "a@example.com", "alice")
	require.NoError(t, s.Create(ctx, u))

	got, err := s.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, "alice", got.Username)
}

func TestCreateDuplicateEmailRejected(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newUser("u1", "a@example.com", "alice")))
	err := s.Create(ctx, newUser("u2", "A@Example.com", "bob"))
	assert.ErrorIs(t, err, ErrAlreadyExists, "email uniqueness must be case-insensitive")
}

func TestCreateDuplicateUsernameRejectedAndRollsBackEmailReservation(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newUser("u1", "a@example.com", "alice")))
	err := s.Create(ctx, newUser("u2", "b@example.com", "alice"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The email reservation for u2's attempt must have rolled back, so a
	// third user can still take b@example.com.
	require.NoError(t, s.Create(ctx, newUser("u3", "b@example.com", "carol")))
}

func TestGetByIDMissing(t *testing.T) {
	s := New(storage.NewMemoryStore())
	_, err := s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByEmailOrUsernameResolvesEither(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newUser("u1", "a@example.com", "alice")))

	byEmail, err := s.GetByEmailOrUsername(ctx, "A@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.UserID)

	byUsername, err := s.GetByEmailOrUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "u1", byUsername.UserID)

	_, err = s.GetByEmailOrUsername(ctx, "nope@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMovesChangedSecondaryIndexes(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()
	u := newUser("u1", "a@example.com", "alice")
	require.NoError(t, s.Create(ctx, u))

	u.Email = "new@example.com"
	require.NoError(t, s.Update(ctx, u))

	_, err := s.GetByEmailOrUsername(ctx, "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound, "old email index must be released")

	got, err := s.GetByEmailOrUsername(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestUpdateToExistingEmailRejected(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newUser("u1", "a@example.com", "alice")))
	require.NoError(t, s.Create(ctx, newUser("u2", "b@example.com", "bob")))

	u2, err := s.GetByID(ctx, "u2")
	require.NoError(t, err)
	u2.Email = "a@example.com"
	err = s.Update(ctx, u2)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestListByOrgReturnsOnlyMatchingOrg(t *testing.T) {
	s := New(storage.NewMemoryStore())
	ctx := context.Background()
	u1 := newUser("u1", "a@example.com", "alice")
	u2 := newUser("u2", "b@example.com", "bob")
	u2.OrgID = "org2"
	require.NoError(t, s.Create(ctx, u1))
	require.NoError(t, s.Create(ctx, u2))

	got, err := s.ListByOrg(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
}

func TestHasRoleAndIsReadOnly(t *testing.T) {
	u := &User{Roles: []Role{RoleReadOnly}}
	assert.True(t, u.HasRole(RoleReadOnly))
	assert.True(t, u.IsReadOnly())
	assert.False(t, u.HasRole(RoleSuperAdmin))
}
