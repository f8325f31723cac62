package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"remotetriage/internal/logging"
	"remotetriage/internal/triage"
)

// ManagerConfig wires the collaborators behind the CLI.
type ManagerConfig struct {
	Reader   triage.Reader
	Observer triage.Observer

	// NewExporter builds the exporter for a directory and format.
	NewExporter func(dir, format string) triage.Exporter
	ExportDir    string
	ExportFormat string

	// Serve runs the HTTP API until ctx is done.
	Serve func(ctx context.Context) error
}

// NewManager returns the Manager backed by triage sessions.
func NewManager(cfg ManagerConfig) Manager {
	return &sessionManager{cfg: cfg}
}

type sessionManager struct {
	cfg ManagerConfig
}

func (m *sessionManager) newSession(ctx context.Context) *triage.Session {
	return triage.NewSession(ctx, m.cfg.Reader, triage.Options{Observer: m.cfg.Observer})
}

func (m *sessionManager) Lookup(ctx context.Context, addr triage.HostAddress) (Report, error) {
	s := m.newSession(ctx)
	defer s.Close()

	snap, err := lookup(ctx, s, addr)
	if err != nil {
		return Report{}, err
	}
	return NewReport(addr.Host, snap), nil
}

func (m *sessionManager) Export(ctx context.Context, addr triage.HostAddress, dir, format string) (string, error) {
	if m.cfg.NewExporter == nil {
		return "", errors.New("no exporter configured")
	}
	if dir == "" {
		dir = m.cfg.ExportDir
	}
	if format == "" {
		format = m.cfg.ExportFormat
	}

	s := m.newSession(ctx)
	defer s.Close()

	snap, err := lookup(ctx, s, addr)
	if err != nil {
		return "", err
	}
	if snap.Err != nil {
		return "", snap.Err
	}
	return s.Export(ctx, m.cfg.NewExporter(dir, format))
}

func (m *sessionManager) Watch(ctx context.Context, addr triage.HostAddress, schedule string, count int) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 4)
	go func() {
		defer close(out)
		send := func(event ProgressEvent) bool {
			select {
			case out <- event:
				return true
			case <-ctx.Done():
				return false
			}
		}

		s := m.newSession(ctx)
		defer s.Close()

		ticks := make(chan struct{}, 1)
		c := cron.New()
		if _, err := c.AddFunc(schedule, func() {
			select {
			case ticks <- struct{}{}:
			default:
				logging.Debug("Skipping watch tick for %s, previous lookup still running", addr.Host)
			}
		}); err != nil {
			send(ProgressEvent{Type: "error", Code: "invalid_schedule", Message: err.Error()})
			return
		}
		c.Start()
		defer c.Stop()

		for run := 1; ; run++ {
			snap, err := lookup(ctx, s, addr)
			if err != nil {
				return
			}
			if !send(watchEvent(addr.Host, run, snap)) {
				return
			}
			if count > 0 && run >= count {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticks:
			}
		}
	}()
	return out
}

func (m *sessionManager) Serve(ctx context.Context) error {
	if m.cfg.Serve == nil {
		return errors.New("serve is not available")
	}
	return m.cfg.Serve(ctx)
}

// lookup submits addr and waits for the session to settle.
func lookup(ctx context.Context, s *triage.Session, addr triage.HostAddress) (triage.Snapshot, error) {
	if !s.SubmitAddress(addr) {
		return triage.Snapshot{}, fmt.Errorf("lookup of %q was not accepted", addr.Host)
	}
	return s.Wait(ctx)
}

func watchEvent(host string, run int, snap triage.Snapshot) ProgressEvent {
	report := NewReport(host, snap)
	if report.Error != "" {
		return ProgressEvent{Type: "error", Code: "fetch_failed", Message: report.Error, Data: report}
	}
	s := report.Summary
	msg := fmt.Sprintf("[%d] %s: %d running, %d failing, %d listeners",
		run, host, s.HealthyClusterCount, s.FailingClusterCount, s.ListenerCount)
	if !report.Found {
		msg = fmt.Sprintf("[%d] %s: no diagnostic data", run, host)
	}
	return ProgressEvent{Type: "result", Message: msg, Data: report}
}
