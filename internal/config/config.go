package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Export formats understood by the file exporter
const (
	ExportFormatJSON = "json"
	ExportFormatYAML = "yaml"
)

// Duration is a time.Duration that decodes from TOML strings like "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all configuration settings for remotetriage
type Config struct {
	// BackendURL is the base URL of the API serving /v1/envoytriage/read
	BackendURL string `toml:"backend_url"`

	// AuthToken is sent as a bearer token to the backend when set
	AuthToken string `toml:"auth_token"`

	// RequestTimeout bounds a single read call
	RequestTimeout Duration `toml:"request_timeout"`

	// ListenAddr is the address for `remotetriage serve`
	ListenAddr string `toml:"listen_addr"`

	// ExportDir is where config dumps are written
	ExportDir string `toml:"export_dir"`

	// ExportFormat is json or yaml
	ExportFormat string `toml:"export_format"`

	// SessionKey signs the browser session cookie
	SessionKey string `toml:"session_key"`

	// SessionTTL expires idle triage sessions on the server
	SessionTTL Duration `toml:"session_ttl"`

	// SessionSweepInterval is how often expired sessions are closed
	SessionSweepInterval Duration `toml:"session_sweep_interval"`

	// SecureCookies marks the session cookie Secure, for serving behind TLS
	SecureCookies bool `toml:"secure_cookies"`

	// LogDir enables file logging when set
	LogDir string `toml:"log_dir"`

	// Debug enables debug logging
	Debug bool `toml:"debug"`
}

// defaultConfig returns the built-in configuration
func defaultConfig() *Config {
	return &Config{
		BackendURL:     DefaultBackendURL,
		RequestTimeout: Duration{DefaultRequestTimeout},
		ListenAddr:     DefaultListenAddr,
		ExportDir:      ".",
		ExportFormat:   ExportFormatJSON,
		SessionTTL:     Duration{DefaultSessionTTL},

		SessionSweepInterval: Duration{DefaultSessionSweepInterval},
	}
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	config := defaultConfig()

	configPath := DefaultConfigFile
	if p := os.Getenv("REMOTETRIAGE_CONFIG"); p != "" {
		configPath = p
	}
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	config.BackendURL = strings.TrimRight(config.BackendURL, "/")
	config.ExportFormat = strings.ToLower(config.ExportFormat)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TRIAGE_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("TRIAGE_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("TRIAGE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TRIAGE_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = Duration{d}
	}
	if v := os.Getenv("TRIAGE_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("TRIAGE_EXPORT_DIR"); v != "" {
		c.ExportDir = v
	}
	if v := os.Getenv("TRIAGE_EXPORT_FORMAT"); v != "" {
		c.ExportFormat = v
	}
	if v := os.Getenv("TRIAGE_SESSION_KEY"); v != "" {
		c.SessionKey = v
	}
	if v := os.Getenv("TRIAGE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TRIAGE_SESSION_TTL: %w", err)
		}
		c.SessionTTL = Duration{d}
	}
	if v := os.Getenv("TRIAGE_SESSION_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TRIAGE_SESSION_SWEEP_INTERVAL: %w", err)
		}
		c.SessionSweepInterval = Duration{d}
	}
	if v := os.Getenv("TRIAGE_SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRIAGE_SECURE_COOKIES: %w", err)
		}
		c.SecureCookies = b
	}
	if v := os.Getenv("TRIAGE_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
	return nil
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if c.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout.Duration)
	}
	if c.SessionTTL.Duration <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %s", c.SessionTTL.Duration)
	}
	if c.SessionSweepInterval.Duration <= 0 {
		return fmt.Errorf("session_sweep_interval must be positive, got %s", c.SessionSweepInterval.Duration)
	}
	switch c.ExportFormat {
	case ExportFormatJSON, ExportFormatYAML:
	default:
		return fmt.Errorf("unsupported export_format %q", c.ExportFormat)
	}
	return nil
}

// String returns a string representation of the configuration without secrets
func (c *Config) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("BackendURL: %s", c.BackendURL))
	parts = append(parts, fmt.Sprintf("RequestTimeout: %s", c.RequestTimeout.Duration))
	parts = append(parts, fmt.Sprintf("ListenAddr: %s", c.ListenAddr))
	parts = append(parts, fmt.Sprintf("ExportDir: %s", c.ExportDir))
	parts = append(parts, fmt.Sprintf("ExportFormat: %s", c.ExportFormat))
	parts = append(parts, fmt.Sprintf("SessionTTL: %s", c.SessionTTL.Duration))
	parts = append(parts, fmt.Sprintf("SessionSweepInterval: %s", c.SessionSweepInterval.Duration))
	parts = append(parts, fmt.Sprintf("SecureCookies: %t", c.SecureCookies))
	return strings.Join(parts, ", ")
}
