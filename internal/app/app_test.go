package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderline/internal/app"
	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/media"
)

func TestOpenWiresDefaults(t *testing.T) {
	ws := t.TempDir()
	a, err := app.Open(context.Background(), ws)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Metrics)
	assert.Equal(t, filepath.Join(ws, ".orderline", "media"), a.MediaDir)
	local, ok := a.Media.(media.LocalStore)
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8080/media", local.BaseURL)
}

func TestOpenWithoutMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	a, err := app.OpenWithConfig(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Metrics)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, app.EnsureBootstrapAdmin(ctx, a.Engine, ""))
	require.NoError(t, app.EnsureBootstrapAdmin(ctx, a.Engine, ""))

	me, err := a.Engine.Me(ctx, app.BootstrapAdminID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, me.Roles)
	assert.Equal(t, "Local admin", me.Name)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir())
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, app.EnsureBootstrapAdmin(ctx, a.Engine, ""))
	admin, err := a.Engine.Subject(ctx, app.BootstrapAdminID)
	require.NoError(t, err)

	rep, err := app.Seed(ctx, a.Engine, admin, app.SeedOptions{
		Seed:      42,
		Customers: 3,
		Shippers:  2,
		Designers: 2,
		Orders:    12,
		Quotes:    6,
	})
	require.NoError(t, err)
	assert.Len(t, rep.Actors, 7)
	assert.Len(t, rep.Orders, 12)
	assert.Len(t, rep.Quotes, 6)

	page, err := a.Engine.List(ctx, admin, engine.ListFilter{Kind: domain.KindOrder, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	for _, v := range page.Items {
		p, ok := v.Payload.(*domain.OrderPayload)
		require.True(t, ok)
		assert.NotEmpty(t, p.Items)
		assert.True(t, p.Total.IsPositive())
	}

	counts, err := a.Engine.CountByStatus(ctx, admin, engine.ListFilter{Kind: domain.KindQuote})
	require.NoError(t, err)
	assert.Equal(t, 6, counts[domain.StatusPending]+counts[domain.StatusReviewing])

	actors, err := a.Engine.ListActors(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, actors, 8)
}
