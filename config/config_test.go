package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_RepositoryConfig(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("RBAC_ADMIN_USER_IDS", "")
	t.Setenv("RBAC_DEFAULT_ROLE", "")

	cfg, err := LoadFrom("local", ".")
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Server.Port)
	assert.Equal(t, "timeline-service", cfg.OTel.ServiceName)
	assert.Positive(t, cfg.Outbox.BatchSize)
	assert.Positive(t, cfg.Outbox.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.IndexTTL)
	assert.Equal(t, []int{1}, cfg.RBAC.AdminUserIDs)
	assert.Equal(t, "editor", cfg.RBAC.DefaultRole)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Outbox.Interval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.IndexTTL)
}
