package cli

import (
	"context"

	"remotetriage/internal/triage"
)

// Manager abstracts core operations for the CLI.
type Manager interface {
	Lookup(ctx context.Context, addr triage.HostAddress) (Report, error)
	Export(ctx context.Context, addr triage.HostAddress, dir, format string) (string, error)
	Watch(ctx context.Context, addr triage.HostAddress, schedule string, count int) <-chan ProgressEvent
	Serve(ctx context.Context) error
}
