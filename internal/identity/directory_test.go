package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/identity"
	"orderline/internal/migrate"
	"orderline/internal/repo"
)

func newDirectory(t *testing.T) (*identity.Directory, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, db.DriverSQLite))
	r := repo.Repo{DB: conn, Driver: db.DriverSQLite}
	return identity.NewDirectory(r, 16, time.Hour), r
}

func TestResolve(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, domain.Actor{ID: "s1", Name: "Sam", Email: "sam@example.com"}))
	require.NoError(t, d.Grant(ctx, "s1", domain.RoleShipper))

	got, err := d.Resolve(ctx, "s1", "ghost", "s1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []domain.Role{domain.RoleShipper}, got["s1"].Roles)

	_, err = d.Get(ctx, "ghost")
	assert.ErrorIs(t, err, identity.ErrUnknownActor)

	roles, err := d.Roles(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestWritesInvalidateCache(t *testing.T) {
	d, r := newDirectory(t)
	ctx := context.Background()
	require.NoError(t, d.Ensure(ctx, "d1"))
	roles, err := d.Roles(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	require.NoError(t, d.Grant(ctx, "d1", domain.RoleDesigner))
	roles, err = d.Roles(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleDesigner}, roles)

	// a write behind the directory's back is hidden until the entry expires
	require.NoError(t, r.GrantRole(ctx, nil, "d1", domain.RoleAdmin))
	roles, err = d.Roles(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleDesigner}, roles)

	require.NoError(t, d.Revoke(ctx, "d1", domain.RoleDesigner))
	roles, err = d.Roles(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, roles)
}

func TestGrantUnknownActor(t *testing.T) {
	d, _ := newDirectory(t)
	err := d.Grant(context.Background(), "ghost", domain.RoleAdmin)
	assert.ErrorIs(t, err, identity.ErrUnknownActor)
}

func TestProfileHidesEmail(t *testing.T) {
	a := domain.Actor{ID: "c1", Name: "Cleo", Email: "cleo@example.com"}
	assert.Empty(t, identity.Profile(a, false).Email)
	assert.Equal(t, "cleo@example.com", identity.Profile(a, true).Email)
}
