package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"remotetriage/internal/config"
	"remotetriage/internal/logging"
	"remotetriage/internal/metrics"
	"remotetriage/internal/triage"
)

func TestNormalizeListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare port number", input: "8090", want: ":8090"},
		{name: "port with colon prefix", input: ":8090", want: ":8090"},
		{name: "full address with host", input: "127.0.0.1:8090", want: "127.0.0.1:8090"},
		{name: "IPv6 address", input: "[::1]:8090", want: "[::1]:8090"},
		{name: "surrounding whitespace", input: " 8090 ", want: ":8090"},
		{name: "invalid port - too high", input: "70000", wantErr: true},
		{name: "invalid port - zero", input: "0", wantErr: true},
		{name: "invalid port - not a number", input: "abc", wantErr: true},
		{name: "host without port number", input: "localhost:http", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeListenAddr(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("normalizeListenAddr() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("normalizeListenAddr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		port    string
		wantErr bool
	}{
		{"80", false},
		{"65535", false},
		{"0", true},
		{"65536", true},
		{"-1", true},
		{"http", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			if err := validatePort(tt.port); (err != nil) != tt.wantErr {
				t.Errorf("validatePort(%q) error = %v, wantErr %v", tt.port, err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig(t *testing.T) {
	cfg := &config.Config{
		SessionKey:           "k",
		SessionTTL:           config.Duration{Duration: 5 * time.Minute},
		SessionSweepInterval: config.Duration{Duration: 20 * time.Second},
		ExportFormat:         config.ExportFormatYAML,
		SecureCookies:        true,
	}

	got := serverConfig(cfg, ":8090")
	if got.ListenAddr != ":8090" || got.SessionKey != "k" || got.ExportFormat != config.ExportFormatYAML {
		t.Errorf("serverConfig() = %+v", got)
	}
	if got.SessionTTL != 5*time.Minute || got.SweepInterval != 20*time.Second {
		t.Errorf("serverConfig() durations = %s, %s", got.SessionTTL, got.SweepInterval)
	}
	if !got.SecureCookies {
		t.Error("serverConfig() dropped SecureCookies")
	}
}

func TestServerBuiltOnlyWhenServing(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(os.Stderr) })

	reader := triage.ReaderFunc(func(context.Context, *triage.ReadRequest) (*triage.Envelope, error) {
		return &triage.Envelope{}, nil
	})
	serve := newServe(serverConfig(&config.Config{
		ListenAddr:           "127.0.0.1:0",
		SessionTTL:           config.Duration{Duration: time.Minute},
		SessionSweepInterval: config.Duration{Duration: time.Minute},
	}, "127.0.0.1:0"), reader, metrics.New())

	if strings.Contains(buf.String(), "session_key") {
		t.Fatalf("server was built before serve ran: %q", buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx); err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	if !strings.Contains(buf.String(), "session_key") {
		t.Errorf("expected the ephemeral session key warning once serving, got %q", buf.String())
	}
}
