package storage

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPostgresStore starts a disposable Postgres container, runs the
// embedded migrations against it, and returns a ready-to-use Store, mirroring
// the teacher's per-test testcontainers setup.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("skipping postgres-backed test: could not start container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresStoreFromDB(db, "test")
	require.NoError(t, err)
	return store
}

func TestPostgresStoreGetMissingReturnsNotFound(t *testing.T) {
	s := newTestPostgresStore(t)
	_, err := s.Get(context.Background(), "missing-key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStorePutThenGetRoundTrip(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("v1")))
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, s.Put(ctx, "k1", []byte("v2")))
	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestPostgresStoreCompareAndSetCreateAndUpdate(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.CompareAndSet(ctx, "k2", nil, []byte("first")))
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k2", nil, []byte("collide")), ErrCASMismatch)

	require.NoError(t, s.CompareAndSet(ctx, "k2", []byte("first"), []byte("second")))
	assert.ErrorIs(t, s.CompareAndSet(ctx, "k2", []byte("first"), []byte("third")), ErrCASMismatch, "stale expected value must be rejected")

	got, err := s.Get(ctx, "k2")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestPostgresStoreScanReturnsPrefixMatchesOnly(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "org:1:a", []byte("1a")))
	require.NoError(t, s.Put(ctx, "org:1:b", []byte("1b")))
	require.NoError(t, s.Put(ctx, "org:2:a", []byte("2a")))

	rows, err := s.Scan(ctx, "org:1:")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Contains(t, rows, "org:1:a")
	assert.Contains(t, rows, "org:1:b")
}

func TestPostgresStoreDelete(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k3", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k3"))

	_, err := s.Get(ctx, "k3")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "does-not-exist"), "deleting an absent key is not an error")
}
