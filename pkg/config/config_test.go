package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, int64(10*1024*1024), cfg.Intake.MaxFileSizeBytes)
	assert.Equal(t, 10, cfg.Intake.ValidationErrorLimit)
	assert.Equal(t, 20, cfg.Intake.ProcessErrorLimit)
	assert.Equal(t, "m", cfg.Intake.DefaultGender)
	assert.Equal(t, 30*time.Minute, cfg.Intake.SignedURLTTL)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "console", cfg.Notifications.Provider)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INTAKE_MAX_FILE_SIZE", "2048")
	t.Setenv("INTAKE_SIGNED_URL_TTL", "bogus")
	t.Setenv("DASHBOARD_CACHE_TTL", "90s")
	t.Setenv("NOTIFY_PROVIDER", "SendGrid")
	t.Setenv("NOTIFY_RECIPIENTS", " ops@example.com, ,registrar@example.com ")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, int64(2048), cfg.Intake.MaxFileSizeBytes)
	assert.Equal(t, 30*time.Minute, cfg.Intake.SignedURLTTL)
	assert.Equal(t, 90*time.Second, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "sendgrid", cfg.Notifications.Provider)
	assert.Equal(t, []string{"ops@example.com", "registrar@example.com"}, cfg.Notifications.Recipients)
	assert.Len(t, cfg.CORS.AllowedOrigins, 2)
}
