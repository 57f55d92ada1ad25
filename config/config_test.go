package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SITE_URL", "http://catalog.test")
	t.Setenv("MAX_APP_SIZE_MB", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://catalog.test/", cfg.SiteURL)
	assert.Equal(t, int64(500), cfg.MaxAppSizeMB)
	assert.Equal(t, int64(5), cfg.MaxImageSizeMB)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MAX_APP_SIZE_MB", "100")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.MaxAppSizeMB)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MAX_IMAGE_SIZE_MB", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresStrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")

	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}
