package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "USD", cfg.Quote.Currency)
	assert.Equal(t, time.Minute, cfg.Identity.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Quote.EnforceBreakdownTotal)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("quote:\n  enforce_breakdown_total: true\nserver:\n  addr: :9090\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Quote.EnforceBreakdownTotal)
	assert.Equal(t, "USD", cfg.Quote.Currency)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "database:\n  driver: mysql\n", "driver"},
		{"postgres dsn", "database:\n  driver: postgres\n", "dsn"},
		{"base path", "server:\n  base_path: v0\n", "base_path"},
		{"burst", "server:\n  rate_limit:\n    rps: 5\n    burst: 0\n", "burst"},
		{"media backend", "media:\n  backend: ftp\n", "backend"},
		{"s3 bucket", "media:\n  backend: s3\n", "bucket"},
		{"currency", "quote:\n  currency: \"\"\n", "currency"},
		{"yaml", "server: [", "invalid config yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ol init")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "orderline.yml"), []byte("metrics:\n  enabled: false\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"ORDERLINE_JWT_SECRET":     "s3cret",
		"ORDERLINE_REDIS_PASSWORD": "pw",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "pw", cfg.Notify.Redis.Password)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, out, "s3cret")
}
