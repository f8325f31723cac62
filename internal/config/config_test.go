package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TRIAGE_BACKEND_URL", "TRIAGE_AUTH_TOKEN", "TRIAGE_REQUEST_TIMEOUT",
		"TRIAGE_LISTEN_ADDR", "TRIAGE_EXPORT_DIR", "TRIAGE_EXPORT_FORMAT",
		"TRIAGE_SESSION_KEY", "TRIAGE_SESSION_TTL", "TRIAGE_SESSION_SWEEP_INTERVAL",
		"TRIAGE_SECURE_COOKIES", "TRIAGE_LOG_DIR", "DEBUG",
	} {
		t.Setenv(k, "")
	}
	// Avoid picking up a remotetriage.toml from the package directory
	t.Setenv("REMOTETRIAGE_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout.Duration)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, ".", cfg.ExportDir)
	assert.Equal(t, ExportFormatJSON, cfg.ExportFormat)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL.Duration)
	assert.Equal(t, DefaultSessionSweepInterval, cfg.SessionSweepInterval.Duration)
	assert.False(t, cfg.SecureCookies)
	assert.False(t, cfg.Debug)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "file values",
			file: `
backend_url = "https://triage.internal/"
request_timeout = "5s"
export_format = "YAML"
session_ttl = "10m"
session_sweep_interval = "15s"
secure_cookies = true
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Second, cfg.SessionSweepInterval.Duration)
				assert.True(t, cfg.SecureCookies)
				assert.Equal(t, "https://triage.internal", cfg.BackendURL)
				assert.Equal(t, 5*time.Second, cfg.RequestTimeout.Duration)
				assert.Equal(t, ExportFormatYAML, cfg.ExportFormat)
				assert.Equal(t, 10*time.Minute, cfg.SessionTTL.Duration)
			},
		},
		{
			name: "environment overrides file",
			file: `backend_url = "https://from-file"`,
			envVars: map[string]string{
				"TRIAGE_BACKEND_URL":     "https://from-env",
				"TRIAGE_AUTH_TOKEN":      "secret",
				"TRIAGE_REQUEST_TIMEOUT": "2s",
				"TRIAGE_LISTEN_ADDR":     ":9999",
				"TRIAGE_SECURE_COOKIES":  "true",
				"DEBUG":                  "true",

				"TRIAGE_SESSION_SWEEP_INTERVAL": "30s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://from-env", cfg.BackendURL)
				assert.Equal(t, "secret", cfg.AuthToken)
				assert.Equal(t, 2*time.Second, cfg.RequestTimeout.Duration)
				assert.Equal(t, ":9999", cfg.ListenAddr)
				assert.Equal(t, 30*time.Second, cfg.SessionSweepInterval.Duration)
				assert.True(t, cfg.SecureCookies)
				assert.True(t, cfg.Debug)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "remotetriage.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
			t.Setenv("REMOTETRIAGE_CONFIG", path)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{name: "bad timeout syntax", envVars: map[string]string{"TRIAGE_REQUEST_TIMEOUT": "soon"}},
		{name: "zero timeout", envVars: map[string]string{"TRIAGE_REQUEST_TIMEOUT": "0s"}},
		{name: "negative ttl", envVars: map[string]string{"TRIAGE_SESSION_TTL": "-1m"}},
		{name: "unknown format", envVars: map[string]string{"TRIAGE_EXPORT_FORMAT": "xml"}},
		{name: "zero sweep interval", envVars: map[string]string{"TRIAGE_SESSION_SWEEP_INTERVAL": "0s"}},
		{name: "bad secure cookies flag", envVars: map[string]string{"TRIAGE_SECURE_COOKIES": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateRequiresBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.BackendURL = ""
	assert.EqualError(t, cfg.Validate(), "backend_url is required")
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg := defaultConfig()
	cfg.AuthToken = "hunter2"
	cfg.SessionKey = "cookie-secret"
	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "cookie-secret")
	assert.Contains(t, s, DefaultBackendURL)
}
