package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, `
base_url: https://staging.example.com
timeout: 15s
pass_threshold: 0.9
suites: [auth, chat]
auth:
  jwt_secret: file-secret
  token_ttl: 30m
report:
  categories: [OTP, Chat]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 0.9, cfg.PassThreshold)
	assert.Equal(t, []string{"auth", "chat"}, cfg.Suites)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultCookieName, cfg.Auth.CookieName)
	assert.Equal(t, []string{"OTP", "Chat"}, cfg.Report.Categories)
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.BaseURL, cfg.BaseURL)
	assert.Equal(t, 0.8, cfg.PassThreshold)
	assert.Empty(t, cfg.Auth.JWTSecret, "no secret may be baked into defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "base_url: http://from-file:3000\n")
	t.Setenv("PROBE_BASE_URL", "http://from-env:4000")
	t.Setenv("PROBE_JWT_SECRET", "env-secret")
	t.Setenv("PROBE_PASS_THRESHOLD", "0.5")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:4000", cfg.BaseURL)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 0.5, cfg.PassThreshold)
	assert.Equal(t, "https://proj.supabase.co", cfg.REST.URL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad scheme", "base_url: ftp://example.com\n"},
		{"threshold too high", "pass_threshold: 1.5\n"},
		{"negative timeout", "timeout: -1s\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"malformed yaml", "base_url: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestBadThresholdEnv(t *testing.T) {
	t.Setenv("PROBE_PASS_THRESHOLD", "most")
	_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
