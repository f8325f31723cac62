// Package main is the entry point for the remote triage client
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"remotetriage/internal/cli"
	"remotetriage/internal/client"
	"remotetriage/internal/config"
	"remotetriage/internal/export"
	"remotetriage/internal/logging"
	"remotetriage/internal/metrics"
	"remotetriage/internal/server"
	"remotetriage/internal/telemetry"
	"remotetriage/internal/triage"
	"remotetriage/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err != nil && os.Getenv("DEBUG") == "true" {
		logging.Debug("No .env file found or error loading it: %v", err)
	}

	// "--version" predates the version subcommand
	if len(args) > 0 && (args[0] == "--version" || args[0] == "-version") {
		args = []string{"version"}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return cli.ExitRuntimeError
	}

	listenAddr, err := normalizeListenAddr(cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid listen_addr: %v\n", err)
		return cli.ExitRuntimeError
	}

	logging.SetDebug(cfg.Debug)
	if cfg.LogDir != "" {
		if err := logging.Initialize(cfg.LogDir); err != nil {
			logging.Warning("Failed to initialize file logging: %v", err)
		} else {
			defer logging.Close() //nolint:errcheck // best effort on exit
		}
	}
	logging.Debug("Configuration: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitializeFromEnv(ctx, version.Get().Version)
	if err != nil {
		logging.Warning("Failed to initialize telemetry: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Error("Error shutting down telemetry: %v", err)
			}
		}()
	}

	reader := client.New(cfg.BackendURL, cfg.RequestTimeout.Duration, client.WithToken(cfg.AuthToken))
	m := metrics.New()

	manager := cli.NewManager(cli.ManagerConfig{
		Reader:   reader,
		Observer: m,
		NewExporter: func(dir, format string) triage.Exporter {
			return export.NewFileExporter(dir, format)
		},
		ExportDir:    cfg.ExportDir,
		ExportFormat: cfg.ExportFormat,
		Serve:        newServe(serverConfig(cfg, listenAddr), reader, m),
	})

	return cli.ExecuteContext(ctx, args, manager, os.Stdout, os.Stderr)
}

func serverConfig(cfg *config.Config, listenAddr string) server.Config {
	return server.Config{
		ListenAddr:    listenAddr,
		SessionKey:    cfg.SessionKey,
		SessionTTL:    cfg.SessionTTL.Duration,
		SweepInterval: cfg.SessionSweepInterval.Duration,
		ExportFormat:  cfg.ExportFormat,
		SecureCookies: cfg.SecureCookies,
	}
}

// newServe defers building the HTTP server until `serve` actually runs.
func newServe(cfg server.Config, reader triage.Reader, m *metrics.Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.New(cfg, reader, m).Run(ctx)
	}
}

// normalizeListenAddr accepts a bare port ("8090") or a host:port pair.
func normalizeListenAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("listen address is empty")
	}
	if !strings.Contains(addr, ":") {
		if err := validatePort(addr); err != nil {
			return "", err
		}
		return ":" + addr, nil
	}

	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if err := validatePort(port); err != nil {
		return "", err
	}
	return addr, nil
}

func validatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}
	return nil
}
