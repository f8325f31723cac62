package config

import "time"

// Default configuration values
const (
	// DefaultConfigFile is read from the working directory when present
	DefaultConfigFile = "remotetriage.toml"

	// DefaultBackendURL points at a locally running triage backend
	DefaultBackendURL = "http://localhost:8080"

	// DefaultListenAddr is the default address for the triage HTTP API
	DefaultListenAddr = ":8090"

	DefaultRequestTimeout = 30 * time.Second
	DefaultSessionTTL     = 30 * time.Minute

	DefaultSessionSweepInterval = time.Minute
)
